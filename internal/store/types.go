// Package store holds the conversation memory data model, the
// association store contract and its SQLite implementation.
package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// DateLayout is the calendar date format used for date-scoped recall.
const DateLayout = "2006-01-02"

// Conversation is one persisted chat round. It is never updated.
type Conversation struct {
	ID           int64
	CreatedAt    time.Time
	UserName     string
	UserMessage  string
	AgentName    string
	AgentMessage string
	Emotion      string
	Language     string // empty when the generator did not report one
}

// NewConversation carries the caller-supplied fields of a Conversation.
type NewConversation struct {
	UserName     string
	UserMessage  string
	AgentName    string
	AgentMessage string
	Emotion      string
	Language     string
}

// Association is a retrievable key pointing at the conversation that produced it.
type Association struct {
	ID             int64
	Key            string
	ConversationID int64
	// EmbeddingID is nil for text-only associations.
	EmbeddingID *int64
}

// HasEmbedding reports whether the association carries a vector.
func (a Association) HasEmbedding() bool {
	return a.EmbeddingID != nil
}

// Embedding is a fixed-dimension sentence vector.
type Embedding struct {
	ID     int64
	Vector []float32
}

// AssociationStore is the append-only persistence contract the memory
// engines depend on. Reads never mutate. No operation is idempotent.
type AssociationStore interface {
	CreateConversation(ctx context.Context, c NewConversation) (*Conversation, error)
	CreateAssociation(ctx context.Context, key string, conversationID int64, embeddingID *int64) (*Association, error)
	CreateEmbedding(ctx context.Context, vector []float32) (*Embedding, error)

	// GetConversationByID returns ErrNotFound when id is absent.
	GetConversationByID(ctx context.Context, id int64) (*Conversation, error)
	// GetByKeySimilarity returns associations whose key has trigram similarity
	// of at least threshold with text, most similar first, ties by id.
	GetByKeySimilarity(ctx context.Context, text string, threshold float64) ([]Association, error)
	// GetSimilarEmbedding takes the topN stored vectors nearest to vector by
	// inner-product distance, keeps those with 1-distance >= threshold, and
	// returns their owning conversations nearest-first.
	GetSimilarEmbedding(ctx context.Context, vector []float32, topN int, threshold float64) ([]Conversation, error)
	// GetRandomByDate samples up to limit conversations created on the
	// calendar date of day, uniformly and without replacement.
	GetRandomByDate(ctx context.Context, day time.Time, limit int) ([]Conversation, error)
}

// Store is a backend that can scope association work in a transaction and
// keeps a small key/value configuration table.
type Store interface {
	AssociationStore

	// WithinTx runs fn against a transactional view. The transaction commits
	// when fn returns nil and rolls back on error or panic.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx AssociationStore) error) error

	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}

// Options tune behaviour shared by the backends.
type Options struct {
	Now  func() time.Time
	Rand *rand.Rand
}

// Option configures a backend.
type Option func(*Options)

// WithClock overrides the conversation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// WithRand overrides the random source used by date-scoped sampling.
func WithRand(r *rand.Rand) Option {
	return func(o *Options) { o.Rand = r }
}

// ApplyOptions resolves opts over the defaults.
func ApplyOptions(opts ...Option) Options {
	o := Options{Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Sample picks min(k, n) distinct indices from [0, n) uniformly at random.
func Sample(r *rand.Rand, n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}
	var perm []int
	if r != nil {
		perm = r.Perm(n)
	} else {
		perm = rand.Perm(n)
	}
	return perm[:k]
}

// DayOf returns the calendar date of t in its own location.
func DayOf(t time.Time) string {
	return t.Format(DateLayout)
}
