// Package sqltext prepares raw query file text for execution.
package sqltext

import "strings"

// StripComments removes /* ... */ block comments and -- line comments from sql.
//
// The scan is purely character based: comment markers inside string literals
// or quoted identifiers are treated as comments too. A line comment is dropped
// up to, but not including, its terminating newline so statements stay on
// separate lines. An unterminated block comment swallows the rest of the input.
func StripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	inBlock := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		next := byte(0)
		if i+1 < len(sql) {
			next = sql[i+1]
		}

		switch {
		case inBlock:
			if c == '*' && next == '/' {
				inBlock = false
				i++
			}
		case c == '/' && next == '*':
			inBlock = true
			i++
		case c == '-' && next == '-':
			nl := strings.IndexByte(sql[i:], '\n')
			if nl < 0 {
				return b.String()
			}
			b.WriteByte('\n')
			i += nl
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}
