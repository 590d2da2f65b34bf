package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationResult represents the outcome of a validation pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// Err folds the collected errors into one ErrInvalid error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(r.Errors, "; "))
}

// Check validates the memory options.
func (m Memory) Check() ValidationResult {
	res := ValidationResult{Valid: true, Warnings: []string{}, Errors: []string{}}
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}

	switch m.Strategy {
	case StrategyKeyword, StrategyEmbedding:
	default:
		fail("unknown strategy %q (use keyword or embedding)", m.Strategy)
	}
	if _, ok := ParseLanguage(string(m.Language)); !ok {
		fail("unknown language %q (use ru or en)", m.Language)
	}

	unit := []struct {
		name  string
		value float64
	}{
		{"attention_threshold", m.AttentionThreshold},
		{"truncation_percentage", m.TruncationPercentage},
		{"similarity_percentage", m.SimilarityPercentage},
		{"embedding_similarity_percentage", m.EmbeddingSimilarityPercentage},
	}
	for _, u := range unit {
		// NaN fails both comparisons, so test for the valid range.
		if !(u.value >= 0 && u.value <= 1) {
			fail("%s must be within [0,1], got %v", u.name, u.value)
		}
	}

	if m.EmbeddingTopN < 1 {
		fail("embedding_top_n must be at least 1, got %d", m.EmbeddingTopN)
	}
	if m.TruncationPercentage == 0 {
		res.Warnings = append(res.Warnings, "truncation_percentage is 0; only the single most salient word is kept")
	}

	return res
}

// Validate returns an ErrInvalid error describing every invalid memory option.
func (m Memory) Validate() error {
	return m.Check().Err()
}

// Check validates the whole configuration.
func (c *Config) Check() ValidationResult {
	res := c.Memory.Check()
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			fail("store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DSN == "" {
			fail("store.dsn is required for the postgres driver")
		}
	default:
		fail("unknown store driver %q (use sqlite or postgres)", c.Store.Driver)
	}

	if c.Provider.Generator == "" {
		fail("provider.generator is required")
	}
	if c.Memory.Strategy == StrategyEmbedding && c.Provider.Embedder == "" {
		fail("provider.embedder is required for the embedding strategy")
	}
	if c.Memory.Strategy == StrategyKeyword && c.Attention.URL == "" {
		fail("attention.url is required for the keyword strategy")
	}
	if c.Memory.Strategy == StrategyKeyword && c.Dictionary.APIKey == "" {
		res.Warnings = append(res.Warnings, "dictionary.api_key is empty; synonym expansion is disabled")
	}

	if c.Guard.MaxRounds < 0 {
		fail("guard.max_rounds must not be negative, got %d", c.Guard.MaxRounds)
	}
	if c.Guard.MaxMessageRunes < 0 {
		fail("guard.max_message_runes must not be negative, got %d", c.Guard.MaxMessageRunes)
	}
	for _, pattern := range c.Guard.AllowedSpeakers {
		if !doublestar.ValidatePattern(pattern) {
			fail("guard.allowed_speakers: bad pattern %q", pattern)
		}
	}

	return res
}

// Validate returns an ErrInvalid error describing every problem found.
func (c *Config) Validate() error {
	return c.Check().Err()
}
