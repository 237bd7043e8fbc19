package resolve

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// CamelCase converts a snake_case SQL identifier to an exported Go
// identifier: "user_id" becomes "UserId", "1st" becomes "X1st" (identifiers
// cannot start with a digit).
func CamelCase(s string) string {
	var sb strings.Builder
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == ' ' || r == '-' || r == '.'
	}) {
		part = strings.ToLower(part)
		if part[0] >= '0' && part[0] <= '9' {
			sb.WriteString(part)
			continue
		}
		sb.WriteString(titleCaser.String(part))
	}
	out := sb.String()
	if out == "" {
		out = "X"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "X" + out
	}
	return out
}
