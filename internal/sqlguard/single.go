package sqlguard

import "strings"

// lexical features whose meaning differs between dialects: comments, escapes,
// dollar quoting and quoted identifiers
var ambiguousMarks = []string{`\`, "#", "--", "/*", "$", `"`, "`"}

// IsSingleStatement reports whether stmt holds exactly one statement. Trailing
// semicolons are ignored. Any other semicolon must sit inside a plain
// single-quoted literal; when the text also carries comment, escape or
// quoting syntax that dialects read differently the answer is false.
func IsSingleStatement(stmt string) bool {
	s := strings.TrimRight(strings.TrimSpace(stmt), "; \t\r\n")
	if s == "" {
		return false
	}

	if !strings.Contains(s, ";") {
		return true
	}

	for _, mark := range ambiguousMarks {
		if strings.Contains(s, mark) {
			return false
		}
	}

	inQuote := false

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			if inQuote && i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}

			inQuote = !inQuote
		case ';':
			if !inQuote {
				return false
			}
		}
	}

	return true
}
