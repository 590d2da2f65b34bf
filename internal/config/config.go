// Package config loads and validates the memory engine and backend settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/recall/internal/guard"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Language selects synonym expansion and the temporal probe phrases.
type Language string

const (
	LanguageRU Language = "ru"
	LanguageEN Language = "en"
)

// ParseLanguage maps a raw tag to a known Language. Unknown tags report false.
func ParseLanguage(s string) (Language, bool) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LanguageRU:
		return LanguageRU, true
	case LanguageEN:
		return LanguageEN, true
	}
	return "", false
}

// Strategy selects the memory engine variant.
type Strategy string

const (
	StrategyKeyword   Strategy = "keyword"
	StrategyEmbedding Strategy = "embedding"
)

// Memory holds the options every engine is constructed with.
type Memory struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Language Language `json:"language" yaml:"language"`

	// AttentionThreshold is the minimum normalized salience a word needs to be kept.
	AttentionThreshold float64 `json:"attention_threshold" yaml:"attention_threshold"`
	// TruncationPercentage is the fraction of surviving words retained (at least one).
	TruncationPercentage float64 `json:"truncation_percentage" yaml:"truncation_percentage"`
	// SimilarityPercentage is the minimum trigram similarity for keyword matches.
	SimilarityPercentage float64 `json:"similarity_percentage" yaml:"similarity_percentage"`
	// EmbeddingSimilarityPercentage is the minimum cosine similarity for vector matches.
	EmbeddingSimilarityPercentage float64 `json:"embedding_similarity_percentage" yaml:"embedding_similarity_percentage"`
	// EmbeddingTopN caps candidates per vector query and records per date recall.
	EmbeddingTopN int `json:"embedding_top_n" yaml:"embedding_top_n"`
}

// Store selects the persistence backend.
type Store struct {
	Driver string `json:"driver" yaml:"driver"` // sqlite or postgres
	Path   string `json:"path" yaml:"path"`     // sqlite database file
	DSN    string `json:"dsn" yaml:"dsn"`       // postgres connection string
}

// Provider selects the response generator and sentence embedding backends.
type Provider struct {
	Generator      string  `json:"generator" yaml:"generator"` // gemini, openai, ollama, anthropic, cli, stub
	Embedder       string  `json:"embedder" yaml:"embedder"`   // gemini, openai, ollama, onnx, stub
	Model          string  `json:"model" yaml:"model"`
	EmbeddingModel string  `json:"embedding_model" yaml:"embedding_model"`
	BaseURL        string  `json:"base_url" yaml:"base_url"`
	APIKey         string  `json:"api_key" yaml:"api_key"`
	Temperature    float32 `json:"temperature" yaml:"temperature"`
	CLIPath        string  `json:"cli_path" yaml:"cli_path"`

	// ONNX sentence model files, used when Embedder is onnx.
	ModelPath     string `json:"model_path" yaml:"model_path"`
	TokenizerPath string `json:"tokenizer_path" yaml:"tokenizer_path"`
	Dimensions    int    `json:"dimensions" yaml:"dimensions"`
	// ONNXLibrary is the onnxruntime shared library; ONNXRUNTIME_LIB is used when empty.
	ONNXLibrary string `json:"onnx_library" yaml:"onnx_library"`
}

// Attention points at the token-attention model service.
type Attention struct {
	URL            string `json:"url" yaml:"url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Dictionary configures the synonym lookup service.
type Dictionary struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	CacheSize int64  `json:"cache_size" yaml:"cache_size"`
}

// Config is the full application configuration.
type Config struct {
	Memory     Memory       `json:"memory" yaml:"memory"`
	Store      Store        `json:"store" yaml:"store"`
	Provider   Provider     `json:"provider" yaml:"provider"`
	Attention  Attention    `json:"attention" yaml:"attention"`
	Dictionary Dictionary   `json:"dictionary" yaml:"dictionary"`
	Guard      guard.Policy `json:"guard" yaml:"guard"`
}

// Default returns a configuration that runs fully locally with the stub
// generator and embedder.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Memory: Memory{
			Strategy:                      StrategyEmbedding,
			Language:                      LanguageRU,
			AttentionThreshold:            0.3,
			TruncationPercentage:          0.5,
			SimilarityPercentage:          0.4,
			EmbeddingSimilarityPercentage: 0.75,
			EmbeddingTopN:                 5,
		},
		Store: Store{
			Driver: "sqlite",
			Path:   filepath.Join(home, ".recall", "recall.db"),
		},
		Provider: Provider{
			Generator:   "stub",
			Embedder:    "stub",
			Temperature: 0.5,
			Dimensions:  768,
		},
		Attention: Attention{
			URL:            "http://localhost:8090",
			TimeoutSeconds: 30,
		},
		Dictionary: Dictionary{
			BaseURL:   "https://dictionary.yandex.net/api/v1/dicservice.json",
			CacheSize: 10000,
		},
		Guard: guard.Policy{
			MaxRounds:       guard.DefaultPolicy.MaxRounds,
			MaxMessageRunes: guard.DefaultPolicy.MaxMessageRunes,
			AllowedSpeakers: append([]string(nil), guard.DefaultPolicy.AllowedSpeakers...),
		},
	}
}

// Load reads a configuration file (JSON or YAML) on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (use .json or .yaml)", ext)
	}

	return cfg, nil
}
