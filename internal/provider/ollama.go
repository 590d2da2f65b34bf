package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

type OllamaProvider struct {
	client         *api.Client
	model          string
	embeddingModel string
	temperature    float32
}

var (
	_ Generator     = (*OllamaProvider)(nil)
	_ WordGenerator = (*OllamaProvider)(nil)
	_ Embedder      = (*OllamaProvider)(nil)
)

// NewOllamaProvider connects to baseURL, falling back to OLLAMA_HOST and
// then the local default.
func NewOllamaProvider(baseURL, model, embeddingModel string, temperature float32) (*OllamaProvider, error) {
	if model == "" {
		model = "llama3.2"
	}
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}

	if baseURL == "" {
		baseURL = "http://localhost:11434"
		if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
			baseURL = envURL
		}
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	client := api.NewClient(uri, http.DefaultClient)

	return &OllamaProvider{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) complete(ctx context.Context, prompt, schema string) (string, error) {
	req := &api.ChatRequest{
		Model: p.model,
		Messages: []api.Message{
			{Role: "system", Content: SystemInstruction + "\n" + schemaInstruction(schema)},
			{Role: "user", Content: prompt},
		},
		Stream:  new(bool), // false
		Format:  json.RawMessage(schema),
		Options: map[string]any{"temperature": p.temperature},
	}

	var content string
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return content, nil
}

func (p *OllamaProvider) Generate(ctx context.Context, background, message string) (*Reply, error) {
	text, err := p.complete(ctx, Prompt(background, message), ReplySchema)
	if err != nil {
		return nil, err
	}
	return ParseReply(text)
}

func (p *OllamaProvider) GenerateWord(ctx context.Context, background, message string) (string, error) {
	text, err := p.complete(ctx, Prompt(background, message), WordSchema)
	if err != nil {
		return "", err
	}
	return ParseWord(text)
}

func (p *OllamaProvider) EmbedSentences(ctx context.Context, sentences []string) ([][]float32, error) {
	if len(sentences) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.embeddingModel,
		Input: sentences,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	if len(resp.Embeddings) != len(sentences) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d sentences", len(resp.Embeddings), len(sentences))
	}
	return resp.Embeddings, nil
}
