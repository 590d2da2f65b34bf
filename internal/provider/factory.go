package provider

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/recall/internal/config"
)

// NewGenerator builds the generator named by cfg.Generator.
func NewGenerator(cfg config.Provider) (Generator, error) {
	switch cfg.Generator {
	case "", "stub":
		return NewStubProvider(), nil
	case "gemini":
		return NewGeminiProvider(cfg.APIKey, cfg.Model, cfg.EmbeddingModel, cfg.Temperature)
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.EmbeddingModel, cfg.Temperature)
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.EmbeddingModel, cfg.Temperature)
	case "anthropic":
		p, err := NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.Temperature)
		if err != nil {
			return nil, err
		}
		if cfg.BaseURL != "" {
			p.SetBaseURL(cfg.BaseURL)
		}
		return p, nil
	case "cli":
		fields := strings.Fields(cfg.CLIPath)
		if len(fields) == 0 {
			return nil, fmt.Errorf("provider.cli_path is required for the cli generator")
		}
		return NewCLIProvider(fields[0], fields[1:])
	}
	return nil, fmt.Errorf("unknown generator %q", cfg.Generator)
}

// NewEmbedder builds the embedder named by cfg.Embedder. The onnx embedder
// lives in its own package and is not handled here.
func NewEmbedder(cfg config.Provider) (Embedder, error) {
	switch cfg.Embedder {
	case "", "stub":
		return NewStubEmbedder(cfg.Dimensions), nil
	case "gemini":
		return NewGeminiProvider(cfg.APIKey, cfg.Model, cfg.EmbeddingModel, cfg.Temperature)
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.EmbeddingModel, cfg.Temperature)
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.EmbeddingModel, cfg.Temperature)
	}
	return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
}
