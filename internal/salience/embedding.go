package salience

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/recall/internal/textsim"
)

// Embedder returns one vector per sentence, in input order.
type Embedder interface {
	EmbedSentences(ctx context.Context, sentences []string) ([][]float32, error)
}

// Sentence is one indexable unit of text with its vector.
type Sentence struct {
	Text   string
	Vector []float32
}

// SentenceEmbedding splits text into sentences and embeds each one.
type SentenceEmbedding struct {
	embedder Embedder
}

func NewSentenceEmbedding(embedder Embedder) *SentenceEmbedding {
	return &SentenceEmbedding{embedder: embedder}
}

// Extract splits text on sentence boundaries, prefixes each sentence with
// "<prefix>: " when prefix is set, and embeds the prefixed sentences.
func (s *SentenceEmbedding) Extract(ctx context.Context, text, prefix string) ([]Sentence, error) {
	sentences := textsim.Sentences(text, prefix)
	if len(sentences) == 0 {
		return nil, nil
	}
	vectors, err := s.Embed(ctx, sentences)
	if err != nil {
		return nil, err
	}
	out := make([]Sentence, len(sentences))
	for i := range sentences {
		out[i] = Sentence{Text: sentences[i], Vector: vectors[i]}
	}
	return out, nil
}

// Embed embeds raw strings as they are.
func (s *SentenceEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.embedder.EmbedSentences(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("sentence embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("sentence embedding returned %d vectors for %d sentences", len(vectors), len(texts))
	}
	return vectors, nil
}
