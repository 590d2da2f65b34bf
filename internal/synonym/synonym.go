// Package synonym expands words through a dictionary service. Lookup
// failures are not errors for callers: they produce no synonyms.
package synonym

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/recall/internal/config"
)

// Lookup returns synonyms of word in language. An empty result is valid.
type Lookup interface {
	Synonyms(ctx context.Context, word string, lang config.Language) []string
}

// Source is a dictionary backend that reports its failures.
type Source interface {
	Lookup(ctx context.Context, word string, lang config.Language) ([]string, error)
}

// None is a Lookup that never expands.
type None struct{}

func (None) Synonyms(context.Context, string, config.Language) []string { return nil }

// DefaultBaseURL is the Yandex dictionary JSON API root.
const DefaultBaseURL = "https://dictionary.yandex.net/api/v1/dicservice.json"

// Yandex queries the Yandex dictionary lookup endpoint.
type Yandex struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     *bolt.Logger
}

var (
	_ Lookup = (*Yandex)(nil)
	_ Source = (*Yandex)(nil)
)

// NewYandex builds a client. log may be nil.
func NewYandex(apiKey, baseURL string, log *bolt.Logger) *Yandex {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Yandex{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		// The free tier allows a handful of requests per second.
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		log:     log,
	}
}

type lookupResponse struct {
	Code int `json:"code"`
	Def  []struct {
		Text string `json:"text"`
		Tr   []struct {
			Text string `json:"text"`
		} `json:"tr"`
	} `json:"def"`
}

// langPair maps a language to the dictionary's same-language pair.
func langPair(lang config.Language) string {
	if lang == config.LanguageRU {
		return "ru-ru"
	}
	return ""
}

func (y *Yandex) Synonyms(ctx context.Context, word string, lang config.Language) []string {
	syns, err := y.Lookup(ctx, word, lang)
	if err != nil {
		if y.log != nil {
			y.log.Warn().Err(err).Str("word", word).Msg("synonym lookup failed")
		}
		return nil
	}
	return syns
}

// Lookup returns def[0].tr[*].text of the lookup response.
func (y *Yandex) Lookup(ctx context.Context, word string, lang config.Language) ([]string, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("key", y.apiKey)
	q.Set("lang", langPair(lang))
	q.Set("text", word)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+"/lookup?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dictionary api error (%d): %s", resp.StatusCode, string(body))
	}

	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dictionary response: %w", err)
	}
	// Successful responses may omit code.
	if out.Code != 0 && out.Code != http.StatusOK {
		return nil, fmt.Errorf("dictionary api returned code %d", out.Code)
	}
	if len(out.Def) == 0 {
		return nil, nil
	}

	syns := make([]string, 0, len(out.Def[0].Tr))
	for _, tr := range out.Def[0].Tr {
		if tr.Text != "" {
			syns = append(syns, tr.Text)
		}
	}
	return syns, nil
}
