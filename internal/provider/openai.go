package provider

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
}

var (
	_ Generator     = (*OpenAIProvider)(nil)
	_ WordGenerator = (*OpenAIProvider)(nil)
	_ Embedder      = (*OpenAIProvider)(nil)
)

func NewOpenAIProvider(apiKey, baseURL, model, embeddingModel string, temperature float32) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	client := openai.NewClientWithConfig(config)
	if model == "" {
		model = openai.GPT4oMini
	}
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}

	return &OpenAIProvider{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) complete(ctx context.Context, prompt, schema string) (string, error) {
	resp, err := p.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       p.model,
			Temperature: p.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: SystemInstruction + "\n" + schemaInstruction(schema)},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedReply)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, background, message string) (*Reply, error) {
	text, err := p.complete(ctx, Prompt(background, message), ReplySchema)
	if err != nil {
		return nil, err
	}
	return ParseReply(text)
}

func (p *OpenAIProvider) GenerateWord(ctx context.Context, background, message string) (string, error) {
	text, err := p.complete(ctx, Prompt(background, message), WordSchema)
	if err != nil {
		return "", err
	}
	return ParseWord(text)
}

func (p *OpenAIProvider) EmbedSentences(ctx context.Context, sentences []string) ([][]float32, error) {
	if len(sentences) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(
		ctx,
		openai.EmbeddingRequest{
			Input: sentences,
			Model: openai.EmbeddingModel(p.embeddingModel),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) != len(sentences) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d sentences", len(resp.Data), len(sentences))
	}
	out := make([][]float32, len(sentences))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai returned embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
