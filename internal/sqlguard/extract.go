package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kyleking/sqlpilot/internal/errors"
)

// WarnReducedConfidence is recorded when statements came from unfenced text
const WarnReducedConfidence = "no fenced SQL block found; statements were extracted from free text with reduced confidence"

var (
	fencedBlock = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+-]*[ \t]*\r?\n)?(.*?)```")
	// a statement keyword at a word boundary; shape is checked afterwards
	statementStart = regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER)\b`)
	// loose shape checks so prose like "select the users" is not taken as SQL
	statementShape = map[string]*regexp.Regexp{
		"SELECT": regexp.MustCompile(`(?is)^SELECT\s+(.+?\bFROM\b|\d|'|\w+\()`),
		"INSERT": regexp.MustCompile(`(?is)^INSERT\s+INTO\s+\S+`),
		"UPDATE": regexp.MustCompile(`(?is)^UPDATE\s+\S+\s+SET\s+\S`),
		"DELETE": regexp.MustCompile(`(?is)^DELETE\s+FROM\s+\S+`),
		"CREATE": regexp.MustCompile(`(?is)^CREATE\s+(TABLE|INDEX|VIEW|UNIQUE|OR\s+REPLACE)\b`),
		"ALTER":  regexp.MustCompile(`(?is)^ALTER\s+(TABLE|INDEX|VIEW)\b`),
	}
	// stricter shapes for lowercase spans, where prose is the likelier reading
	strictShape = map[string]*regexp.Regexp{
		"SELECT": regexp.MustCompile(`(?is)^SELECT\s+(DISTINCT\s+)?(\*|[\w.]+(\(\*?[\w.]*\))?(\s*,\s*[\w.]+(\(\*?[\w.]*\))?)*)\s+FROM\s+[\w."]+`),
		"INSERT": regexp.MustCompile(`(?is)^INSERT\s+INTO\s+[\w."]+\s*(\(|VALUES\b|SELECT\b)`),
		"UPDATE": regexp.MustCompile(`(?is)^UPDATE\s+[\w."]+\s+SET\s+[\w."]+\s*=`),
		"DELETE": regexp.MustCompile(`(?is)^DELETE\s+FROM\s+[\w."]+\s*(;|WHERE\b|$)`),
		"CREATE": regexp.MustCompile(`(?is)^CREATE\s+(TABLE|VIEW|(UNIQUE\s+)?INDEX)\s+[\w."]+`),
		"ALTER":  regexp.MustCompile(`(?is)^ALTER\s+TABLE\s+[\w."]+\s+(ADD|DROP|ALTER|RENAME)\b`),
	}
	trailingComment = regexp.MustCompile(`^[ \t]*(--|#)[^\n]*`)
)

// Rejection records a candidate statement that failed screening
type Rejection struct {
	Statement string
	Err       error
}

// Extraction is the outcome of pulling statements out of agent output
type Extraction struct {
	Queries   []string
	Warnings  []string
	Rejected  []Rejection
	FromFence bool
}

// Err returns an extraction error when no statement survived, nil otherwise
func (e *Extraction) Err() error {
	if len(e.Queries) > 0 {
		return nil
	}

	if len(e.Rejected) > 0 {
		return errors.Newf(errors.ErrTypeExtraction, "all %d extracted statements were rejected", len(e.Rejected))
	}

	return errors.New(errors.ErrTypeExtraction, "no SQL statements found in agent output")
}

// Extract pulls SQL statements from free-form agent output and screens each one.
// Fenced code blocks are preferred; unfenced text is scanned only when no fenced
// block yields a statement. A rejected statement is dropped with a warning and the
// rest of the batch is kept.
func (r *Rules) Extract(output string) *Extraction {
	result := &Extraction{}

	candidates := fencedCandidates(output)
	if len(candidates) > 0 {
		result.FromFence = true
	} else {
		candidates = freeTextCandidates(output)
		if len(candidates) > 0 {
			result.Warnings = append(result.Warnings, WarnReducedConfidence)
		}
	}

	for i, candidate := range candidates {
		if err := r.Validate(candidate); err != nil {
			result.Rejected = append(result.Rejected, Rejection{Statement: candidate, Err: err})
			result.Warnings = append(result.Warnings, fmt.Sprintf("dropped statement %d: %s", i+1, errors.MessageOf(err)))

			continue
		}

		result.Queries = append(result.Queries, Clean(candidate))
	}

	return result
}

// Clean trims whitespace and any trailing semicolons
func Clean(stmt string) string {
	s := strings.TrimSpace(stmt)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}

	return s
}

// fencedCandidates splits every fenced block body into statements
func fencedCandidates(output string) []string {
	var out []string

	for _, m := range fencedBlock.FindAllStringSubmatch(output, -1) {
		out = append(out, SplitStatements(m[1])...)
	}

	return out
}

// freeTextCandidates scans raw text for statement-shaped spans
func freeTextCandidates(output string) []string {
	var out []string

	pos := 0
	for pos < len(output) {
		loc := statementStart.FindStringIndex(output[pos:])
		if loc == nil {
			break
		}

		start := pos + loc[0]
		word := output[start : pos+loc[1]]
		keyword := strings.ToUpper(word)

		stmt, n := nextStatement(output[start:], true)
		stmt = strings.TrimSpace(stmt)

		// lowercase spans need a terminator or the stricter shape
		sqlish := word == keyword || strings.HasSuffix(stmt, ";") || strictShape[keyword].MatchString(stmt)
		if sqlish && statementShape[keyword].MatchString(stmt) {
			out = append(out, stmt)
			pos = start + n

			continue
		}

		pos = start + (loc[1] - loc[0])
	}

	return out
}

// SplitStatements splits a SQL body on semicolons outside quotes, dropping empties.
// A semicolon followed on the same line by a -- or # comment keeps that comment
// attached so the comment-terminator rule can see it.
func SplitStatements(body string) []string {
	var out []string

	rest := body
	for strings.TrimSpace(rest) != "" {
		stmt, n := nextStatement(rest, false)
		if s := strings.TrimSpace(stmt); s != "" && s != ";" {
			out = append(out, s)
		}

		if n == 0 {
			break
		}

		rest = rest[n:]
	}

	return out
}

// nextStatement returns the first statement in s, including its terminating
// semicolon, and the number of bytes consumed. With stopAtBlankLine a blank line
// outside quotes also ends the statement, which keeps trailing prose out.
func nextStatement(s string, stopAtBlankLine bool) (string, int) {
	var quote byte

	for i := 0; i < len(s); i++ {
		c := s[i]

		if quote != 0 {
			if c == quote {
				// doubled quote is an escaped quote
				if i+1 < len(s) && s[i+1] == quote {
					i++
					continue
				}

				quote = 0
			}

			continue
		}

		switch c {
		case '\'', '"', '`':
			quote = c
		case '\n':
			if stopAtBlankLine && blankLineFollows(s[i+1:]) {
				return s[:i], i + 1
			}
		case ';':
			end := i + 1
			if m := trailingComment.FindStringIndex(s[end:]); m != nil {
				end += m[1]
			}

			return s[:end], end
		}
	}

	return s, len(s)
}

func blankLineFollows(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}

	return true
}
