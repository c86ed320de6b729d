// Package sqlguard extracts SQL statements from free text and screens them
// with a heuristic denylist/allowlist rule set. It is not a SQL parser:
// keywords inside string literals can cause false rejections and obfuscated
// input can slip through. It is one layer of defense, not a guarantee.
package sqlguard

import (
	"regexp"
	"strings"

	"github.com/kyleking/sqlpilot/internal/errors"
)

// Rule is a named pattern that rejects a statement when it matches
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Rules is the statement screening policy
type Rules struct {
	Deny       []Rule
	Allow      *regexp.Regexp
	CheckJoins bool
}

// DefaultRules returns the standard screening policy
func DefaultRules() *Rules {
	return &Rules{
		Deny: []Rule{
			{Name: "DROP", Pattern: regexp.MustCompile(`(?i)\bDROP\b`)},
			{Name: "TRUNCATE", Pattern: regexp.MustCompile(`(?i)\bTRUNCATE\b`)},
			{Name: "GRANT", Pattern: regexp.MustCompile(`(?i)\bGRANT\b`)},
			{Name: "REVOKE", Pattern: regexp.MustCompile(`(?i)\bREVOKE\b`)},
			{Name: "SHUTDOWN", Pattern: regexp.MustCompile(`(?i)\bSHUTDOWN\b`)},
			{Name: "CREATE TABLE", Pattern: regexp.MustCompile(`(?i)\bCREATE\s+TABLE\b`)},
			{Name: "ALTER TABLE", Pattern: regexp.MustCompile(`(?i)\bALTER\s+TABLE\b`)},
			{Name: "comment terminator", Pattern: regexp.MustCompile(`;\s*(--|#)`)},
			{Name: "UNION SELECT", Pattern: regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`)},
			{Name: "tautology", Pattern: regexp.MustCompile(`(?i)\bOR\s+(?:'1'|1\b)\s*=\s*(?:'1'|1\b)`)},
			{Name: "quoted tautology", Pattern: regexp.MustCompile(`(?i)'\s*OR\s+'[^']*'\s*=\s*'`)},
			{Name: "INTO OUTFILE", Pattern: regexp.MustCompile(`(?i)\bINTO\s+(OUT|DUMP)FILE\b`)},
			{Name: "LOAD_FILE", Pattern: regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`)},
		},
		Allow:      regexp.MustCompile(`(?i)^(SELECT|INSERT|UPDATE|DELETE)\b`),
		CheckJoins: true,
	}
}

var (
	joinKeyword = regexp.MustCompile(`(?i)\bJOIN\b`)
	// table reference, optional AS, alias, ON
	joinClause = regexp.MustCompile(`(?i)^\s+([\w.` + "`" + `"\[\]]+)\s+(?:AS\s+)?([A-Za-z_]\w*)\s+ON\b`)
)

// reserved words that can follow a table name but are not aliases
var reservedAfterTable = map[string]bool{
	"on": true, "where": true, "join": true, "inner": true, "left": true,
	"right": true, "full": true, "outer": true, "cross": true, "natural": true,
	"using": true, "group": true, "order": true, "limit": true, "set": true,
	"as": true, "union": true, "having": true,
}

// Validate screens one statement. It returns an unsafe_statement error naming
// the first rule that rejected it, or nil.
func (r *Rules) Validate(stmt string) error {
	trimmed := strings.TrimSpace(stmt)
	if trimmed == "" {
		return errors.New(errors.ErrTypeUnsafeStatement, "empty statement")
	}

	for _, rule := range r.Deny {
		if rule.Pattern.MatchString(trimmed) {
			return errors.Newf(errors.ErrTypeUnsafeStatement, "matches denylisted pattern %s", rule.Name)
		}
	}

	if r.Allow != nil && !r.Allow.MatchString(trimmed) {
		return errors.New(errors.ErrTypeUnsafeStatement,
			"statement must start with SELECT, INSERT, UPDATE, or DELETE")
	}

	if r.CheckJoins {
		if err := checkJoins(trimmed); err != nil {
			return err
		}
	}

	return nil
}

// checkJoins requires every JOIN to name a table, an explicit alias, and an ON clause
func checkJoins(stmt string) error {
	for _, loc := range joinKeyword.FindAllStringIndex(stmt, -1) {
		m := joinClause.FindStringSubmatch(stmt[loc[1]:])
		if m == nil {
			return errors.New(errors.ErrTypeUnsafeStatement,
				"JOIN must be followed by a table, an alias, and an ON clause")
		}

		if reservedAfterTable[strings.ToLower(m[2])] {
			return errors.Newf(errors.ErrTypeUnsafeStatement, "JOIN %s has no alias", m[1])
		}
	}

	return nil
}
