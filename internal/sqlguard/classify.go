package sqlguard

import (
	"regexp"
	"strings"

	"github.com/kyleking/sqlpilot/internal/types"
)

var (
	leadingWord = regexp.MustCompile(`^\s*\(?\s*([A-Za-z]+)`)
	tableRef    = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE)\s+([\w.` + "`" + `"\[\]]+)`)
)

// DetectType classifies a statement by its leading keyword
func DetectType(stmt string) types.QueryType {
	m := leadingWord.FindStringSubmatch(stmt)
	if m == nil {
		return types.QueryTypeUnknown
	}

	switch strings.ToUpper(m[1]) {
	case "SELECT", "WITH":
		return types.QueryTypeSelect
	case "INSERT":
		return types.QueryTypeInsert
	case "UPDATE":
		return types.QueryTypeUpdate
	case "DELETE":
		return types.QueryTypeDelete
	default:
		return types.QueryTypeOther
	}
}

// ReferencedTables lists identifiers that follow FROM, JOIN, INTO or UPDATE,
// unquoted and without schema qualifier, in order of first appearance.
func ReferencedTables(stmt string) []string {
	var out []string

	seen := make(map[string]bool)

	for _, m := range tableRef.FindAllStringSubmatch(stmt, -1) {
		name := m[1]
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}

		name = strings.Trim(name, "`\"[]")
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}

		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}

	return out
}
