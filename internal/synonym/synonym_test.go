package synonym

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/recall/internal/config"
)

func TestYandex_Lookup(t *testing.T) {
	var gotLang, gotKey, gotText string
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/lookup" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotLang, gotKey, gotText = q.Get("lang"), q.Get("key"), q.Get("text")
		switch gotText {
		case "дом":
			_, _ = w.Write([]byte(`{"head":{},"def":[{"text":"дом","pos":"noun","tr":[{"text":"здание"},{"text":"жилище"}]},{"text":"дом","tr":[{"text":"ignored"}]}]}`))
		case "пусто":
			_, _ = w.Write([]byte(`{"head":{},"def":[]}`))
		case "сломано":
			_, _ = w.Write([]byte(`not json`))
		default:
			http.Error(w, `{"code":401,"message":"API key is invalid"}`, http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	y := NewYandex("secret", server.URL, nil)
	ctx := context.Background()

	t.Run("First definition translations", func(t *testing.T) {
		got := y.Synonyms(ctx, "дом", config.LanguageRU)
		if !reflect.DeepEqual(got, []string{"здание", "жилище"}) {
			t.Errorf("unexpected synonyms: %v", got)
		}
		if gotLang != "ru-ru" || gotKey != "secret" || gotText != "дом" {
			t.Errorf("unexpected query: lang=%q key=%q text=%q", gotLang, gotKey, gotText)
		}
	})

	t.Run("Non Russian language pair is empty", func(t *testing.T) {
		_ = y.Synonyms(ctx, "дом", config.LanguageEN)
		if gotLang != "" {
			t.Errorf("expected empty lang pair, got %q", gotLang)
		}
	})

	t.Run("Empty definitions", func(t *testing.T) {
		syns, err := y.Lookup(ctx, "пусто", config.LanguageRU)
		if err != nil || len(syns) != 0 {
			t.Errorf("expected empty result, got %v, %v", syns, err)
		}
	})

	t.Run("Failures yield nothing", func(t *testing.T) {
		for _, word := range []string{"сломано", "unauthorized"} {
			if got := y.Synonyms(ctx, word, config.LanguageRU); len(got) != 0 {
				t.Errorf("%s: expected no synonyms, got %v", word, got)
			}
			if _, err := y.Lookup(ctx, word, config.LanguageRU); err == nil {
				t.Errorf("%s: expected Lookup error", word)
			}
		}
	})

	t.Run("Rate limited before the request", func(t *testing.T) {
		y.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
		if _, err := y.Lookup(ctx, "дом", config.LanguageRU); err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		before := hits.Load()

		short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		if _, err := y.Lookup(short, "дом", config.LanguageRU); err == nil {
			t.Error("expected the limiter to refuse a request past the deadline")
		}
		if got := hits.Load(); got != before {
			t.Errorf("limited lookup reached the server (%d requests, want %d)", got, before)
		}
	})
}

type countingSource struct {
	calls atomic.Int32
	err   error
	gate  chan struct{}
}

func (c *countingSource) Lookup(ctx context.Context, word string, lang config.Language) ([]string, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.err != nil {
		return nil, c.err
	}
	return []string{word + "-syn"}, nil
}

func TestCached(t *testing.T) {
	ctx := context.Background()

	t.Run("Hits after first lookup", func(t *testing.T) {
		src := &countingSource{}
		c, err := NewCached(src, 100, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()

		first := c.Synonyms(ctx, "word", config.LanguageEN)
		c.Wait()
		second := c.Synonyms(ctx, "word", config.LanguageEN)
		if !reflect.DeepEqual(first, []string{"word-syn"}) || !reflect.DeepEqual(first, second) {
			t.Errorf("unexpected results %v / %v", first, second)
		}
		if n := src.calls.Load(); n != 1 {
			t.Errorf("expected 1 upstream call, got %d", n)
		}

		// Languages are cached separately.
		_ = c.Synonyms(ctx, "word", config.LanguageRU)
		if n := src.calls.Load(); n != 2 {
			t.Errorf("expected 2 upstream calls, got %d", n)
		}
	})

	t.Run("Failures are not cached", func(t *testing.T) {
		src := &countingSource{err: errors.New("down")}
		c, err := NewCached(src, 100, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()

		for range 2 {
			if got := c.Synonyms(ctx, "word", config.LanguageEN); got != nil {
				t.Errorf("expected nil, got %v", got)
			}
			c.Wait()
		}
		if n := src.calls.Load(); n != 2 {
			t.Errorf("expected 2 upstream calls, got %d", n)
		}
	})

	t.Run("Concurrent lookups share a call", func(t *testing.T) {
		src := &countingSource{gate: make(chan struct{})}
		c, err := NewCached(src, 100, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()

		var wg sync.WaitGroup
		started := make(chan struct{}, 4)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				started <- struct{}{}
				_ = c.Synonyms(ctx, "shared", config.LanguageEN)
			}()
		}
		for range 4 {
			<-started
		}
		close(src.gate)
		wg.Wait()

		// Late arrivals may miss the flight and hit the upstream again,
		// but never more than once each.
		if n := src.calls.Load(); n < 1 || n > 4 {
			t.Errorf("unexpected upstream calls: %d", n)
		}
	})
}

func TestNone(t *testing.T) {
	if got := (None{}).Synonyms(context.Background(), "x", config.LanguageRU); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
