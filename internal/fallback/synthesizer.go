// Package fallback builds SQL mechanically from schema metadata and prompt
// keywords when the prompting agent produced nothing usable.
package fallback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kyleking/sqlpilot/internal/sqlguard"
	"github.com/kyleking/sqlpilot/internal/types"
)

// Placeholder selects the bind parameter syntax of generated statements
type Placeholder string

const (
	PlaceholderNamed    Placeholder = "named"    // :column
	PlaceholderQuestion Placeholder = "question" // ?
	PlaceholderDollar   Placeholder = "dollar"   // $1
)

const defaultLimit = 10

// managedColumns are maintained by the database or application and never
// listed in generated column lists
var managedColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"deleted_at": true,
}

// PlaceholderForDriver returns the parameter style a driver binds natively
func PlaceholderForDriver(driver string) Placeholder {
	switch strings.ToLower(driver) {
	case "postgres", "pgx":
		return PlaceholderDollar
	case "mysql", "duckdb":
		return PlaceholderQuestion
	default:
		return PlaceholderNamed
	}
}

// Result is the outcome of one synthesis
type Result struct {
	Intent   types.QueryType `json:"intent"`
	Table    string          `json:"table,omitempty"`
	Queries  []string        `json:"queries"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Synthesizer builds deterministic statements for a prompt
type Synthesizer struct {
	rules       *sqlguard.Rules
	placeholder Placeholder
	limit       int
}

// Option configures a Synthesizer
type Option func(*Synthesizer)

// WithRules validates candidates with rules instead of sqlguard.DefaultRules
func WithRules(rules *sqlguard.Rules) Option {
	return func(s *Synthesizer) { s.rules = rules }
}

// WithPlaceholder sets the bind parameter style
func WithPlaceholder(p Placeholder) Option {
	return func(s *Synthesizer) {
		if p != "" {
			s.placeholder = p
		}
	}
}

// WithLimit sets the row cap for unranged selects
func WithLimit(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.limit = n
		}
	}
}

// New creates a Synthesizer with named placeholders and a limit of 10
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		rules:       sqlguard.DefaultRules(),
		placeholder: PlaceholderNamed,
		limit:       defaultLimit,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// request carries everything a builder needs
type request struct {
	table *types.TableSchema
	words wordSet
	bind  *binder
}

// builder assembles one statement, or returns a reason it cannot
type builder func(s *Synthesizer, req request) (string, error)

var builders = map[types.QueryType]builder{
	types.QueryTypeSelect: buildSelect,
	types.QueryTypeInsert: buildInsert,
	types.QueryTypeUpdate: buildUpdate,
	types.QueryTypeDelete: buildDelete,
}

// Synthesize classifies the prompt and builds a statement against the first
// table. Statements that cannot be built safely are skipped with a warning.
func (s *Synthesizer) Synthesize(prompt string, tables []*types.TableSchema) *Result {
	words := newWordSet(prompt)
	result := &Result{Intent: classify(words)}

	if len(tables) == 0 || tables[0] == nil {
		result.Warnings = append(result.Warnings, "fallback: no tables available to build a statement")
		return result
	}

	table := tables[0]
	result.Table = table.Name

	build, ok := builders[result.Intent]
	if !ok {
		result.Warnings = append(result.Warnings, fmt.Sprintf("fallback: no builder for %s statements", result.Intent))
		return result
	}

	stmt, err := build(s, request{table: table, words: words, bind: &binder{style: s.placeholder}})
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("fallback: skipped %s on %s: %v", result.Intent, table.Name, err))
		return result
	}

	if err := s.rules.Validate(stmt); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("fallback: generated statement rejected: %v", err))
		return result
	}

	result.Queries = append(result.Queries, stmt)

	return result
}

func buildSelect(s *Synthesizer, req request) (string, error) {
	columns := listedColumns(req.table)
	if len(columns) == 0 {
		columns = req.table.ColumnNames()
	}

	if len(columns) == 0 {
		return "", fmt.Errorf("table has no columns")
	}

	var sb strings.Builder

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(req.table.Name)

	if req.words.any(recencyKeywords) {
		if col := recencyColumn(req.table); col != "" {
			sb.WriteString(" ORDER BY ")
			sb.WriteString(col)
			sb.WriteString(" DESC")
		}
	}

	if !req.words.any(allKeywords) {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(s.limit))
	}

	return sb.String(), nil
}

func buildInsert(_ *Synthesizer, req request) (string, error) {
	columns := listedColumns(req.table)
	if len(columns) == 0 {
		return "", fmt.Errorf("no writable columns")
	}

	values := make([]string, len(columns))
	for i, col := range columns {
		values[i] = req.bind.next(col)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		req.table.Name, strings.Join(columns, ", "), strings.Join(values, ", ")), nil
}

func buildUpdate(_ *Synthesizer, req request) (string, error) {
	keys := keyColumns(req)
	if len(keys) == 0 {
		return "", fmt.Errorf("no primary key or named column to restrict the update")
	}

	var assignments []string

	for _, col := range listedColumns(req.table) {
		if containsFold(keys, col) {
			continue
		}

		assignments = append(assignments, col+" = "+req.bind.next(col))
	}

	if len(assignments) == 0 {
		return "", fmt.Errorf("no columns to update")
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		req.table.Name, strings.Join(assignments, ", "), whereClause(keys, req.bind)), nil
}

func buildDelete(_ *Synthesizer, req request) (string, error) {
	keys := keyColumns(req)
	if len(keys) == 0 {
		return "", fmt.Errorf("no primary key or named column to restrict the delete")
	}

	return fmt.Sprintf("DELETE FROM %s WHERE %s", req.table.Name, whereClause(keys, req.bind)), nil
}

// listedColumns returns the non-managed, non-generated columns in physical order
func listedColumns(table *types.TableSchema) []string {
	var out []string

	for _, col := range table.Columns {
		if managedColumns[strings.ToLower(col.Name)] || col.AutoIncrement() {
			continue
		}

		out = append(out, col.Name)
	}

	return out
}

// keyColumns returns the primary key, else the first column the prompt names
func keyColumns(req request) []string {
	if len(req.table.PrimaryKey) > 0 {
		return req.table.PrimaryKey
	}

	for _, col := range req.table.Columns {
		if req.words.has(col.Name) || req.words.has(strings.ReplaceAll(col.Name, "_", " ")) {
			return []string{col.Name}
		}
	}

	return nil
}

// recencyColumn prefers created_at, then updated_at, then any temporal column
func recencyColumn(table *types.TableSchema) string {
	for _, name := range []string{"created_at", "updated_at"} {
		if col, ok := table.Column(name); ok {
			return col.Name
		}
	}

	for _, col := range table.Columns {
		if col.Temporal() {
			return col.Name
		}
	}

	return ""
}

func whereClause(keys []string, bind *binder) string {
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = k + " = " + bind.next(k)
	}

	return strings.Join(conds, " AND ")
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}

	return false
}

// binder numbers placeholders in statement order
type binder struct {
	style Placeholder
	n     int
}

func (b *binder) next(column string) string {
	b.n++

	switch b.style {
	case PlaceholderQuestion:
		return "?"
	case PlaceholderDollar:
		return "$" + strconv.Itoa(b.n)
	default:
		return ":" + column
	}
}
