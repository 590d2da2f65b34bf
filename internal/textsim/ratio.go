package textsim

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Ratio is the sequence-matcher similarity of two strings compared rune by
// rune: 2*M/T where M is the number of matched runes and T the total length.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := runes(a), runes(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	return difflib.NewMatcher(ra, rb).Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
