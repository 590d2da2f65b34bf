package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client         *genai.Client
	model          string
	embeddingModel string
	temperature    float32
}

var (
	_ Generator     = (*GeminiProvider)(nil)
	_ WordGenerator = (*GeminiProvider)(nil)
	_ Embedder      = (*GeminiProvider)(nil)
)

func NewGeminiProvider(apiKey, model, embeddingModel string, temperature float32) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-2.5-flash"
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-004"
	}

	return &GeminiProvider{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

var geminiReplySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"my_name_is": {Type: genai.TypeString},
		"language":   {Type: genai.TypeString, Enum: []string{"ru", "en"}, Nullable: true},
		"emotion":    {Type: genai.TypeString},
		"thought":    {Type: genai.TypeString},
		"answer":     {Type: genai.TypeString},
		"motion":     {Type: genai.TypeString},
		"association_words": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"my_name_is", "emotion", "thought", "answer", "motion", "association_words"},
}

var geminiWordSchema = &genai.Schema{
	Type:       genai.TypeObject,
	Properties: map[string]*genai.Schema{"word": {Type: genai.TypeString}},
	Required:   []string{"word"},
}

func (p *GeminiProvider) complete(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	m := p.client.GenerativeModel(p.model)
	m.SetTemperature(p.temperature)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemInstruction)}}
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = schema

	resp, err := m.StartChat().SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates returned", ErrMalformedReply)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func (p *GeminiProvider) Generate(ctx context.Context, background, message string) (*Reply, error) {
	text, err := p.complete(ctx, Prompt(background, message), geminiReplySchema)
	if err != nil {
		return nil, err
	}
	return ParseReply(text)
}

func (p *GeminiProvider) GenerateWord(ctx context.Context, background, message string) (string, error) {
	text, err := p.complete(ctx, Prompt(background, message), geminiWordSchema)
	if err != nil {
		return "", err
	}
	return ParseWord(text)
}

func (p *GeminiProvider) EmbedSentences(ctx context.Context, sentences []string) ([][]float32, error) {
	if len(sentences) == 0 {
		return nil, nil
	}
	em := p.client.EmbeddingModel(p.embeddingModel)
	batch := em.NewBatch()
	for _, s := range sentences {
		batch.AddContent(genai.Text(s))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if len(res.Embeddings) != len(sentences) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d sentences", len(res.Embeddings), len(sentences))
	}
	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini returned no embedding for sentence %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
