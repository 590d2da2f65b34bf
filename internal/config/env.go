package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays RECALL_* environment variables on c.
func (c *Config) ApplyEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	if v := os.Getenv("RECALL_STRATEGY"); v != "" {
		c.Memory.Strategy = Strategy(v)
	}
	if v := os.Getenv("RECALL_LANGUAGE"); v != "" {
		c.Memory.Language = Language(v)
	}
	num("RECALL_ATTENTION_THRESHOLD", &c.Memory.AttentionThreshold)
	num("RECALL_TRUNCATION_PERCENTAGE", &c.Memory.TruncationPercentage)
	num("RECALL_SIMILARITY_PERCENTAGE", &c.Memory.SimilarityPercentage)
	num("RECALL_EMBEDDING_SIMILARITY_PERCENTAGE", &c.Memory.EmbeddingSimilarityPercentage)
	if v := os.Getenv("RECALL_EMBEDDING_TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Memory.EmbeddingTopN = n
		}
	}

	str("RECALL_DB_DRIVER", &c.Store.Driver)
	str("RECALL_DB_PATH", &c.Store.Path)
	str("RECALL_DB_DSN", &c.Store.DSN)

	str("RECALL_GENERATOR", &c.Provider.Generator)
	str("RECALL_EMBEDDER", &c.Provider.Embedder)
	str("RECALL_MODEL", &c.Provider.Model)
	str("RECALL_EMBEDDING_MODEL", &c.Provider.EmbeddingModel)
	str("RECALL_BASE_URL", &c.Provider.BaseURL)
	str("RECALL_API_KEY", &c.Provider.APIKey)

	str("RECALL_ATTENTION_URL", &c.Attention.URL)
	str("RECALL_DICTIONARY_API_KEY", &c.Dictionary.APIKey)
}
