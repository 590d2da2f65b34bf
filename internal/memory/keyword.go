package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/salience"
	"github.com/felixgeelhaar/recall/internal/store"
	"github.com/felixgeelhaar/recall/internal/synonym"
)

const keywordEngine = "keyword"

// KeywordEngine recalls conversations whose stored words fuzzily match the
// salient words of the message or their synonyms.
type KeywordEngine struct {
	cfg       config.Memory
	store     store.Store
	generator provider.Generator
	attention *salience.TokenAttention
	synonyms  synonym.Lookup
	observe   *observe.Observer
}

// NewKeywordEngine validates cfg and wires the keyword strategy.
func NewKeywordEngine(cfg config.Memory, deps Deps) (*KeywordEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.require("store", "generator", "attention"); err != nil {
		return nil, err
	}
	deps.defaults()
	return &KeywordEngine{
		cfg:       cfg,
		store:     deps.Store,
		generator: deps.Generator,
		attention: salience.NewTokenAttention(deps.Attention),
		synonyms:  deps.Synonyms,
		observe:   deps.Observer,
	}, nil
}

func (e *KeywordEngine) Name() string { return keywordEngine }

func (e *KeywordEngine) sealed() {}

func (e *KeywordEngine) salient(ctx context.Context, text string) ([]string, error) {
	return e.attention.ExtractSalientWords(ctx, text, e.cfg.AttentionThreshold, e.cfg.TruncationPercentage)
}

// Recall extracts, expands and matches without writing.
func (e *KeywordEngine) Recall(ctx context.Context, turn Turn) (*Recollection, error) {
	_, rec, err := e.recall(ctx, e.store, turn)
	return rec, err
}

// Word recalls without writing and asks for one word about the message.
func (e *KeywordEngine) Word(ctx context.Context, turn Turn) (string, error) {
	_, rec, err := e.recall(ctx, e.store, turn)
	if err != nil {
		return "", err
	}
	return generateWord(ctx, e.generator, e.observe, keywordEngine, turn.ID, rec.Context, turn.Message)
}

func (e *KeywordEngine) recall(ctx context.Context, s store.AssociationStore, turn Turn) ([]string, *Recollection, error) {
	log := e.observe.Round(turn.ID)

	extractCtx, span := e.observe.StartStage(ctx, keywordEngine, "extract")
	words, err := e.salient(extractCtx, turn.Message)
	span.End()
	if err != nil {
		return nil, nil, fmt.Errorf("extract salient words: %w", err)
	}

	matchCtx, span := e.observe.StartStage(ctx, keywordEngine, "match")
	ids := newIDSet()
	triggers := 0
	for _, word := range words {
		expanded := append([]string{word}, e.synonyms.Synonyms(matchCtx, word, e.cfg.Language)...)
		for _, trigger := range expanded {
			triggers++
			assocs, err := s.GetByKeySimilarity(matchCtx, trigger, e.cfg.SimilarityPercentage)
			if err != nil {
				span.End()
				return nil, nil, fmt.Errorf("match %q: %w", trigger, err)
			}
			for _, a := range assocs {
				ids.Add(a.ConversationID)
			}
		}
	}
	span.End()

	assembleCtx, span := e.observe.StartStage(ctx, keywordEngine, "assemble")
	defer span.End()
	rec := &Recollection{}
	var asm ContextAssembler
	for _, id := range ids.IDs() {
		c, err := s.GetConversationByID(assembleCtx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("load conversation %d: %w", id, err)
		}
		rec.Conversations = append(rec.Conversations, *c)
		asm.Append(*c)
	}
	rec.Context = asm.String()

	log.Info().
		Str("engine", keywordEngine).
		Str("words", strings.Join(words, ",")).
		Int("triggers", triggers).
		Int("conversations", len(rec.Conversations)).
		Msg("recalled conversations")
	return words, rec, nil
}

// Chat runs one keyword round. Store failures roll the round back.
func (e *KeywordEngine) Chat(ctx context.Context, turn Turn) (*Round, error) {
	ctx, span := e.observe.StartSpan(ctx, "keyword.Chat")
	defer span.End()

	var round *Round
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.AssociationStore) error {
		words, rec, err := e.recall(ctx, tx, turn)
		if err != nil {
			return err
		}

		reply, failed := generate(ctx, e.generator, e.observe, keywordEngine, turn.ID, rec.Context, turn.Message)
		round = &Round{Recollection: *rec, Reply: reply, GenerationFailed: failed}
		return e.ingest(ctx, tx, turn, words, round)
	})
	if err != nil {
		span.RecordError(err)
		e.observe.Round(turn.ID).Error().Str("engine", keywordEngine).Err(err).Msg("round rolled back")
		return nil, err
	}
	return round, nil
}

// ingest stores the conversation, its emotion and the salient words of the
// message, answer, thought and association words. The word list grows across
// the three extractions and is written in full after each one.
func (e *KeywordEngine) ingest(ctx context.Context, tx store.AssociationStore, turn Turn, words []string, round *Round) error {
	ctx, span := e.observe.StartStage(ctx, keywordEngine, "ingest")
	defer span.End()

	reply := round.Reply
	conv, err := tx.CreateConversation(ctx, store.NewConversation{
		UserName:     turn.Speaker,
		UserMessage:  turn.Message,
		AgentName:    reply.MyNameIs,
		AgentMessage: reply.Answer,
		Emotion:      reply.Emotion,
		Language:     string(reply.Language),
	})
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	round.Conversation = conv

	if _, err := tx.CreateAssociation(ctx, reply.Emotion, conv.ID, nil); err != nil {
		return fmt.Errorf("create emotion association: %w", err)
	}
	round.Associations++

	for _, text := range []string{reply.Answer, reply.Thought, strings.Join(reply.AssociationWords, " ")} {
		more, err := e.salient(ctx, text)
		if err != nil {
			return fmt.Errorf("extract salient words: %w", err)
		}
		words = append(words, more...)
		for _, w := range words {
			if _, err := tx.CreateAssociation(ctx, w, conv.ID, nil); err != nil {
				return fmt.Errorf("create association %q: %w", w, err)
			}
			round.Associations++
		}
	}

	e.observe.Round(turn.ID).Info().
		Str("engine", keywordEngine).
		Str("conversation", strconv.FormatInt(conv.ID, 10)).
		Int("associations", round.Associations).
		Msg("ingested round")
	return nil
}
