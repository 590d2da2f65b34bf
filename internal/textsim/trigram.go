// Package textsim holds the text and vector similarity measures shared by the
// store backends and the memory engines.
package textsim

import (
	"strings"
	"unicode"
)

// Trigrams returns the trigram set of s using the same rules as Postgres
// pg_trgm: the text is lower-cased, split into words on non alphanumeric
// runes, and every word is padded with two leading and one trailing space.
func Trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Words(s) {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// TrigramSimilarity mirrors pg_trgm's similarity(): shared trigrams divided
// by the size of the union. Two texts without any trigram score 0.
func TrigramSimilarity(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// Words lower-cases s and splits it on every rune that is neither a letter
// nor a digit.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
