package salience

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPAttention calls a token-attention model service. The service accepts
// {"sentence": "..."} on POST /attention and answers with the WordPiece
// tokens of the sentence and their attention mass.
type HTTPAttention struct {
	baseURL string
	client  *http.Client
}

var _ Attention = (*HTTPAttention)(nil)

func NewHTTPAttention(baseURL string, timeout time.Duration) *HTTPAttention {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAttention{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type attentionRequest struct {
	Sentence string `json:"sentence"`
}

type attentionResponse struct {
	Tokens []TokenWeight `json:"tokens"`
	Error  string        `json:"error,omitempty"`
}

func (a *HTTPAttention) Attention(ctx context.Context, sentence string) ([]TokenWeight, error) {
	body, err := json.Marshal(attentionRequest{Sentence: sentence})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/attention", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attention service error (%d): %s", resp.StatusCode, string(raw))
	}

	var out attentionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attention response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("attention service error: %s", out.Error)
	}
	for _, t := range out.Tokens {
		if t.Weight < 0 {
			return nil, fmt.Errorf("attention service returned negative weight %v for %q", t.Weight, t.Token)
		}
	}
	return out.Tokens, nil
}
