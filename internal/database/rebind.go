// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"strconv"
	"strings"
)

// rebindQuestionToDollar rewrites '?' placeholders to '$1..$n' for the
// Postgres driver. Question marks inside single-quoted string literals
// are left untouched; our queries do not use comments or dollar quoting.
func rebindQuestionToDollar(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var (
		out           strings.Builder
		param         int
		inSingleQuote bool
	)
	out.Grow(len(query) + 16)

	for i := 0; i < len(query); i++ {
		ch := query[i]

		if inSingleQuote {
			out.WriteByte(ch)
			if ch == '\'' {
				// '' escapes a quote inside a literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte('\'')
					i++
				} else {
					inSingleQuote = false
				}
			}
			continue
		}

		switch ch {
		case '\'':
			inSingleQuote = true
			out.WriteByte(ch)
		case '?':
			param++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(param))
		default:
			out.WriteByte(ch)
		}
	}

	return out.String()
}
