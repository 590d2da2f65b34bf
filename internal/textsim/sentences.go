package textsim

import (
	"regexp"
	"strings"
)

var sentenceBoundary = regexp.MustCompile(`\.\s*`)

// Sentences splits text on full stops, trims every fragment and drops the
// empty ones. When prefix is non-empty each sentence becomes "prefix: s".
func Sentences(text, prefix string) []string {
	var out []string
	for _, s := range sentenceBoundary.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if prefix != "" {
			s = prefix + ": " + s
		}
		out = append(out, s)
	}
	return out
}
