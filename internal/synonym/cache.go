package synonym

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/felixgeelhaar/bolt/v3"
	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/recall/internal/config"
)

// Cached memoizes a Source. Concurrent lookups of the same word share one
// upstream call; failures are logged and not cached.
type Cached struct {
	next  Source
	cache *ristretto.Cache
	group singleflight.Group
	log   *bolt.Logger
}

var _ Lookup = (*Cached)(nil)

// NewCached wraps next with a cache holding roughly maxEntries words.
// log may be nil.
func NewCached(next Source, maxEntries int64, log *bolt.Logger) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create synonym cache: %w", err)
	}
	return &Cached{next: next, cache: cache, log: log}, nil
}

func cacheKey(word string, lang config.Language) string {
	return string(lang) + "\x00" + word
}

func (c *Cached) Synonyms(ctx context.Context, word string, lang config.Language) []string {
	key := cacheKey(word, lang)
	if v, ok := c.cache.Get(key); ok {
		return v.([]string)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		syns, err := c.next.Lookup(ctx, word, lang)
		if err != nil {
			return nil, err
		}
		if syns == nil {
			syns = []string{}
		}
		c.cache.Set(key, syns, 1)
		return syns, nil
	})
	if err != nil {
		if c.log != nil {
			c.log.Warn().Err(err).Str("word", word).Msg("synonym lookup failed")
		}
		return nil
	}
	return v.([]string)
}

// Wait blocks until pending cache writes are visible.
func (c *Cached) Wait() {
	c.cache.Wait()
}

func (c *Cached) Close() {
	c.cache.Close()
}
