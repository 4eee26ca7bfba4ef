package query

import "strings"

// queryStringSpecial lists the characters with meaning in bleve query-string syntax.
const queryStringSpecial = `+-=&|><!(){}[]^"~*?:\/ `

// Escape backslash-escapes every query-string syntax character of s.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(queryStringSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
