// Package memory implements the two retrieval strategies of the agent's
// long-term memory: keyword matching over salient words and vector matching
// over sentence embeddings. Both run one chat round as
// extract, match, dedup, assemble, generate, ingest.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/salience"
	"github.com/felixgeelhaar/recall/internal/store"
	"github.com/felixgeelhaar/recall/internal/synonym"
)

// ErrMissingDependency is returned by constructors when a required
// collaborator is nil.
var ErrMissingDependency = errors.New("missing dependency")

// Turn is the incoming user side of a chat round.
type Turn struct {
	// ID tags logs of this round. Optional.
	ID      string
	Speaker string
	Message string
	Emotion string
}

// Recollection is the retrieved part of a round.
type Recollection struct {
	Context       string
	Conversations []store.Conversation
}

// Round is the outcome of a completed chat round.
type Round struct {
	Recollection
	Reply        *provider.Reply
	Conversation *store.Conversation
	// Associations counts the association rows written by ingestion.
	Associations int
	// GenerationFailed is set when Reply is the empty substitute.
	GenerationFailed bool
}

// Engine is one memory strategy. Only *KeywordEngine and *EmbeddingEngine
// implement it.
type Engine interface {
	// Chat runs a full round inside one unit of work on the store.
	Chat(ctx context.Context, turn Turn) (*Round, error)
	// Recall runs retrieval only. It never writes.
	Recall(ctx context.Context, turn Turn) (*Recollection, error)
	// Word recalls like Recall and asks the generator for a single word.
	// Generation failures yield "" and no error.
	Word(ctx context.Context, turn Turn) (string, error)
	Name() string

	sealed()
}

// Deps are the collaborators an engine is constructed with.
type Deps struct {
	Store     store.Store
	Generator provider.Generator
	Observer  *observe.Observer

	// Keyword strategy.
	Attention salience.Attention
	Synonyms  synonym.Lookup

	// Embedding strategy.
	Embedder salience.Embedder

	// Now is the clock used for date-scoped recall. Defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) defaults() {
	if d.Observer == nil {
		d.Observer = observe.Nop()
	}
	if d.Synonyms == nil {
		d.Synonyms = synonym.None{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

func (d Deps) require(names ...string) error {
	for _, name := range names {
		var missing bool
		switch name {
		case "store":
			missing = d.Store == nil
		case "generator":
			missing = d.Generator == nil
		case "attention":
			missing = d.Attention == nil
		case "embedder":
			missing = d.Embedder == nil
		}
		if missing {
			return fmt.Errorf("%w: %s", ErrMissingDependency, name)
		}
	}
	return nil
}

// New builds the engine selected by cfg.Strategy.
func New(cfg config.Memory, deps Deps) (Engine, error) {
	switch cfg.Strategy {
	case config.StrategyKeyword:
		return NewKeywordEngine(cfg, deps)
	case config.StrategyEmbedding:
		return NewEmbeddingEngine(cfg, deps)
	default:
		return nil, fmt.Errorf("%w: unknown memory strategy %q", config.ErrInvalid, cfg.Strategy)
	}
}

// generate asks the generator for a reply. Failures are logged and replaced
// by the empty reply so ingestion still happens.
func generate(ctx context.Context, gen provider.Generator, obs *observe.Observer, engine, roundID, background, message string) (*provider.Reply, bool) {
	ctx, span := obs.StartStage(ctx, engine, "generate")
	defer span.End()

	reply, err := gen.Generate(ctx, background, message)
	if err == nil && reply == nil {
		err = provider.ErrMalformedReply
	}
	if err != nil {
		span.RecordError(err)
		obs.Round(roundID).Warn().
			Str("engine", engine).
			Str("generator", gen.Name()).
			Err(err).
			Msg("generation failed, continuing with empty reply")
		return provider.EmptyReply(), true
	}
	return reply, false
}

// generateWord asks the generator for one word. Like generate, failures are
// logged and yield "". Only a generator without single-word support is an
// error.
func generateWord(ctx context.Context, gen provider.Generator, obs *observe.Observer, engine, roundID, background, message string) (string, error) {
	wg, ok := gen.(provider.WordGenerator)
	if !ok {
		return "", fmt.Errorf("%w: generator %s cannot produce single words", ErrMissingDependency, gen.Name())
	}

	ctx, span := obs.StartStage(ctx, engine, "word")
	defer span.End()

	word, err := wg.GenerateWord(ctx, background, message)
	if err != nil {
		span.RecordError(err)
		obs.Round(roundID).Warn().
			Str("engine", engine).
			Str("generator", gen.Name()).
			Err(err).
			Msg("word generation failed, continuing with empty word")
		return "", nil
	}
	return strings.TrimSpace(word), nil
}
