// Package salience turns raw text into indexable units: salient words for
// the keyword engine and sentence vectors for the embedding engine.
package salience

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
)

// TokenWeight is one WordPiece token and its attention mass.
type TokenWeight struct {
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
}

// Attention returns per-token attention weights for a sentence. Weights are
// non-negative but not normalized.
type Attention interface {
	Attention(ctx context.Context, sentence string) ([]TokenWeight, error)
}

// WordScore is a whole word and its normalized salience in [0,1].
type WordScore struct {
	Word  string
	Score float64
}

const continuationPrefix = "##"

var structuralTokens = map[string]bool{
	"[CLS]": true,
	"[SEP]": true,
	"[PAD]": true,
}

// MergeTokens joins continuation sub-tokens into whole words, skipping
// structural tokens, and min-max normalizes the mean token weight of each
// word. When all words score the same every word gets 0.
func MergeTokens(tokens []TokenWeight) []WordScore {
	var words []WordScore
	var current strings.Builder
	var sum float64
	var count int

	flush := func() {
		if current.Len() > 0 {
			words = append(words, WordScore{Word: current.String(), Score: sum / float64(count)})
		}
		current.Reset()
		sum, count = 0, 0
	}

	for _, tok := range tokens {
		if structuralTokens[tok.Token] {
			continue
		}
		if rest, ok := strings.CutPrefix(tok.Token, continuationPrefix); ok {
			current.WriteString(rest)
		} else {
			flush()
			current.WriteString(tok.Token)
		}
		sum += tok.Weight
		count++
	}
	flush()

	if len(words) == 0 {
		return words
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, w := range words {
		lo = min(lo, w.Score)
		hi = max(hi, w.Score)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	for i := range words {
		words[i].Score = (words[i].Score - lo) / span
	}
	return words
}

// SelectSalient keeps words scoring at least threshold, orders them by score
// (stable on ties) and truncates to max(1, floor(n*topFraction)).
func SelectSalient(scores []WordScore, threshold, topFraction float64) []string {
	kept := make([]WordScore, 0, len(scores))
	for _, s := range scores {
		if s.Score >= threshold {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	slices.SortStableFunc(kept, func(a, b WordScore) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	n := max(1, int(math.Floor(float64(len(kept))*topFraction)))
	n = min(n, len(kept))

	words := make([]string, n)
	for i := range n {
		words[i] = kept[i].Word
	}
	return words
}

// TokenAttention scores words of a sentence with an attention model.
type TokenAttention struct {
	model Attention
}

func NewTokenAttention(model Attention) *TokenAttention {
	return &TokenAttention{model: model}
}

// Score returns the normalized word scores of sentence in extraction order.
func (t *TokenAttention) Score(ctx context.Context, sentence string) ([]WordScore, error) {
	if strings.TrimSpace(sentence) == "" {
		return nil, nil
	}
	tokens, err := t.model.Attention(ctx, sentence)
	if err != nil {
		return nil, fmt.Errorf("attention scoring failed: %w", err)
	}
	return MergeTokens(tokens), nil
}

// ExtractSalientWords scores sentence and applies SelectSalient.
func (t *TokenAttention) ExtractSalientWords(ctx context.Context, sentence string, threshold, topFraction float64) ([]string, error) {
	scores, err := t.Score(ctx, sentence)
	if err != nil {
		return nil, err
	}
	return SelectSalient(scores, threshold, topFraction), nil
}
