// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package keygen produces and normalizes human-readable license key strings.
//
// Generated keys consist of 4 groups of 5 characters drawn from an
// unambiguous alphabet (no 0/O, 1/I) joined by dashes, for example
// ABCDE-FGHJK-LMNPQ-RSTUV. The generator makes no uniqueness guarantee;
// the license store's UNIQUE constraint enforces that at insert time.
package keygen

import (
	"crypto/rand"
	"strings"
)

// Alphabet is the set of characters license keys are drawn from.
// Visually confusable characters (0/O, 1/I) are excluded.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	groupCount  = 4
	groupLength = 5

	// displayGroupLength is the grouping used by client-side display
	// formatting (XXXX-XXXX-XXXX-XXXX). It is independent of the
	// generator's native 5-character grouping.
	displayGroupLength = 4
)

// Generate returns a new random license key string.
func Generate() string {
	buf := make([]byte, groupCount*groupLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails if the OS entropy source is broken,
		// at which point nothing else in the process works either.
		panic("keygen: crypto/rand unavailable: " + err.Error())
	}

	var b strings.Builder
	b.Grow(groupCount*groupLength + groupCount - 1)
	for i, by := range buf {
		if i > 0 && i%groupLength == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(Alphabet[int(by)%len(Alphabet)])
	}

	return b.String()
}

// Normalize strips all non-alphanumeric characters from the input and
// upper-cases the result. Lookups and comparisons should always operate
// on the normalized form so clients may submit keys in any grouping.
func Normalize(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, ch := range key {
		switch {
		case ch >= 'a' && ch <= 'z':
			b.WriteRune(ch - 'a' + 'A')
		case (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9'):
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// DisplayFormat re-groups a key into the client display convention of
// dash-separated groups of 4. The stored canonical form keeps the
// generator's native grouping; this is cosmetic only.
func DisplayFormat(key string) string {
	stripped := Normalize(key)

	var b strings.Builder
	b.Grow(len(stripped) + len(stripped)/displayGroupLength)
	for i := 0; i < len(stripped); i += displayGroupLength {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + displayGroupLength
		if end > len(stripped) {
			end = len(stripped)
		}
		b.WriteString(stripped[i:end])
	}

	return b.String()
}

// Canonicalize maps arbitrary client input back to the stored canonical
// form: strip noise, uppercase, and re-insert dashes every 5 characters.
// Input that does not strip down to the canonical length is returned in
// normalized form unchanged; lookup will simply miss.
func Canonicalize(key string) string {
	stripped := Normalize(key)
	if len(stripped) != groupCount*groupLength {
		return stripped
	}

	var b strings.Builder
	b.Grow(len(stripped) + groupCount - 1)
	for i := 0; i < len(stripped); i += groupLength {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(stripped[i : i+groupLength])
	}

	return b.String()
}

// Valid reports whether key matches the canonical generated format:
// 4 dash-separated groups of 5 characters from the key alphabet.
func Valid(key string) bool {
	groups := strings.Split(key, "-")
	if len(groups) != groupCount {
		return false
	}
	for _, group := range groups {
		if len(group) != groupLength {
			return false
		}
		for i := 0; i < len(group); i++ {
			if !strings.ContainsRune(Alphabet, rune(group[i])) {
				return false
			}
		}
	}
	return true
}
