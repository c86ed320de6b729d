package query

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"

	"github.com/kyleking/sqlpilot/internal/types"
)

// SelectTier records which rule picked the tables
type SelectTier int

const (
	TierExplicit SelectTier = iota + 1
	TierTableName
	TierColumnName
	TierWholeSchema
)

func (t SelectTier) String() string {
	switch t {
	case TierExplicit:
		return "explicit"
	case TierTableName:
		return "table_name"
	case TierColumnName:
		return "column_name"
	case TierWholeSchema:
		return "whole_schema"
	default:
		return "unknown"
	}
}

// Select picks the tables relevant to a prompt. The first matching rule wins:
// explicit tables, table names (or their singular) in the prompt, column names
// in the prompt, then the whole schema.
func Select(schema *types.Schema, prompt string, explicit []string) []*types.TableSchema {
	tables, _ := SelectWithTier(schema, prompt, explicit)
	return tables
}

// SelectWithTier is Select that also reports the rule that matched
func SelectWithTier(schema *types.Schema, prompt string, explicit []string) ([]*types.TableSchema, SelectTier) {
	if schema == nil {
		return nil, TierWholeSchema
	}

	if len(explicit) > 0 {
		return schema.Subset(explicit), TierExplicit
	}

	words := promptWords(prompt)

	var byTable []*types.TableSchema

	for _, table := range schema.Tables() {
		if tableMentioned(words, table.Name) {
			byTable = append(byTable, table)
		}
	}

	if len(byTable) > 0 {
		return byTable, TierTableName
	}

	var byColumn []*types.TableSchema

	for _, table := range schema.Tables() {
		for _, col := range table.Columns {
			if words[strings.ToLower(col.Name)] {
				byColumn = append(byColumn, table)
				break
			}
		}
	}

	if len(byColumn) > 0 {
		return byColumn, TierColumnName
	}

	return schema.Tables(), TierWholeSchema
}

// promptWords returns the lowercase whole words of a prompt. Underscores are
// part of a word so snake_case identifiers survive intact.
func promptWords(prompt string) map[string]bool {
	words := make(map[string]bool)

	for _, w := range strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		words[w] = true
	}

	return words
}

func tableMentioned(words map[string]bool, name string) bool {
	lower := strings.ToLower(name)
	if words[lower] {
		return true
	}

	singular := strings.ToLower(inflect.Singularize(lower))

	return singular != "" && words[singular]
}
