package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/salience"
	"github.com/felixgeelhaar/recall/internal/store"
	"github.com/felixgeelhaar/recall/internal/textsim"
)

const embeddingEngine = "embedding"

const (
	// NearDuplicateRatio is the sequence-matcher ratio at which two recalled
	// conversations count as the same exchange.
	NearDuplicateRatio = 0.9
	// ProbeSimilarity is the cosine similarity a query sentence needs with a
	// temporal probe phrase to trigger date-scoped recall.
	ProbeSimilarity = 0.9
)

// Probes are the temporal probe phrases of one language.
type Probes struct {
	Yesterday string
	Today     string
}

// ProbesFor returns the probe phrases for lang.
func ProbesFor(lang config.Language) Probes {
	if lang == config.LanguageEN {
		return Probes{Yesterday: "yesterday", Today: "today"}
	}
	return Probes{Yesterday: "вчера", Today: "сегодня"}
}

// EmbeddingEngine recalls conversations whose stored sentence vectors are
// close to the sentences of the message.
type EmbeddingEngine struct {
	cfg       config.Memory
	store     store.Store
	generator provider.Generator
	sentences *salience.SentenceEmbedding
	probes    Probes
	now       func() time.Time
	observe   *observe.Observer
}

// NewEmbeddingEngine validates cfg and wires the embedding strategy.
func NewEmbeddingEngine(cfg config.Memory, deps Deps) (*EmbeddingEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.require("store", "generator", "embedder"); err != nil {
		return nil, err
	}
	deps.defaults()
	return &EmbeddingEngine{
		cfg:       cfg,
		store:     deps.Store,
		generator: deps.Generator,
		sentences: salience.NewSentenceEmbedding(deps.Embedder),
		probes:    ProbesFor(cfg.Language),
		now:       deps.Now,
		observe:   deps.Observer,
	}, nil
}

func (e *EmbeddingEngine) Name() string { return embeddingEngine }

func (e *EmbeddingEngine) sealed() {}

// Recall matches the message sentences without writing.
func (e *EmbeddingEngine) Recall(ctx context.Context, turn Turn) (*Recollection, error) {
	return e.recall(ctx, e.store, turn)
}

func (e *EmbeddingEngine) Word(ctx context.Context, turn Turn) (string, error) {
	rec, err := e.recall(ctx, e.store, turn)
	if err != nil {
		return "", err
	}
	return generateWord(ctx, e.generator, e.observe, embeddingEngine, turn.ID, rec.Context, GeneratorMessage(turn))
}

func (e *EmbeddingEngine) recall(ctx context.Context, s store.AssociationStore, turn Turn) (*Recollection, error) {
	log := e.observe.Round(turn.ID)

	extractCtx, span := e.observe.StartStage(ctx, embeddingEngine, "extract")
	query, err := e.sentences.Extract(extractCtx, turn.Message, turn.Speaker)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("embed message: %w", err)
	}

	matchCtx, span := e.observe.StartStage(ctx, embeddingEngine, "match")
	var kept []store.Conversation
	seen := newIDSet()
	suppressed := 0
	for _, q := range query {
		convs, err := s.GetSimilarEmbedding(matchCtx, q.Vector, e.cfg.EmbeddingTopN, e.cfg.EmbeddingSimilarityPercentage)
		if err != nil {
			span.End()
			return nil, fmt.Errorf("match %q: %w", q.Text, err)
		}
		for _, c := range convs {
			if seen.Has(c.ID) {
				continue
			}
			if nearDuplicate(kept, c) {
				suppressed++
				continue
			}
			seen.Add(c.ID)
			kept = append(kept, c)
		}
	}
	span.End()

	rec := &Recollection{Conversations: kept}
	var asm ContextAssembler
	for _, c := range kept {
		asm.Append(c)
	}

	probeCtx, span := e.observe.StartStage(ctx, embeddingEngine, "probe")
	defer span.End()
	today := e.now()
	days := []struct {
		phrase string
		day    time.Time
	}{
		{e.probes.Yesterday, today.AddDate(0, 0, -1)},
		{e.probes.Today, today},
	}
	for _, d := range days {
		about, err := e.isAbout(probeCtx, d.phrase, query)
		if err != nil {
			return nil, err
		}
		if !about {
			continue
		}
		convs, err := s.GetRandomByDate(probeCtx, d.day, e.cfg.EmbeddingTopN)
		if err != nil {
			return nil, fmt.Errorf("recall %s: %w", store.DayOf(d.day), err)
		}
		log.Info().
			Str("engine", embeddingEngine).
			Str("probe", d.phrase).
			Str("day", store.DayOf(d.day)).
			Int("conversations", len(convs)).
			Msg("temporal probe matched")
		for _, c := range convs {
			rec.Conversations = append(rec.Conversations, c)
			asm.Append(c)
		}
	}
	rec.Context = asm.String()

	log.Info().
		Str("engine", embeddingEngine).
		Int("sentences", len(query)).
		Int("suppressed", suppressed).
		Int("conversations", len(rec.Conversations)).
		Msg("recalled conversations")
	return rec, nil
}

// nearDuplicate reports whether c repeats an already kept exchange on both
// the user and the agent side.
func nearDuplicate(kept []store.Conversation, c store.Conversation) bool {
	for _, k := range kept {
		if textsim.Ratio(k.UserMessage, c.UserMessage) >= NearDuplicateRatio &&
			textsim.Ratio(k.AgentMessage, c.AgentMessage) >= NearDuplicateRatio {
			return true
		}
	}
	return false
}

// isAbout reports whether any query sentence is close to the probe phrase.
func (e *EmbeddingEngine) isAbout(ctx context.Context, phrase string, query []salience.Sentence) (bool, error) {
	if len(query) == 0 {
		return false, nil
	}
	vecs, err := e.sentences.Embed(ctx, []string{phrase})
	if err != nil {
		return false, fmt.Errorf("embed probe %q: %w", phrase, err)
	}
	for _, q := range query {
		if textsim.Cosine(q.Vector, vecs[0]) >= ProbeSimilarity {
			return true, nil
		}
	}
	return false, nil
}

// GeneratorMessage renders the user turn as the generator sees it.
func GeneratorMessage(turn Turn) string {
	return turn.Speaker + ": " + turn.Message + "\nEmotion: " + turn.Emotion
}

// Chat runs one embedding round. Store failures roll the round back.
func (e *EmbeddingEngine) Chat(ctx context.Context, turn Turn) (*Round, error) {
	ctx, span := e.observe.StartSpan(ctx, "embedding.Chat")
	defer span.End()

	var round *Round
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.AssociationStore) error {
		rec, err := e.recall(ctx, tx, turn)
		if err != nil {
			return err
		}

		reply, failed := generate(ctx, e.generator, e.observe, embeddingEngine, turn.ID, rec.Context, GeneratorMessage(turn))
		round = &Round{Recollection: *rec, Reply: reply, GenerationFailed: failed}
		return e.ingest(ctx, tx, turn, round)
	})
	if err != nil {
		span.RecordError(err)
		e.observe.Round(turn.ID).Error().Str("engine", embeddingEngine).Err(err).Msg("round rolled back")
		return nil, err
	}
	return round, nil
}

func (e *EmbeddingEngine) ingest(ctx context.Context, tx store.AssociationStore, turn Turn, round *Round) error {
	ctx, span := e.observe.StartStage(ctx, embeddingEngine, "ingest")
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

	// An empty emotion has nothing to embed and stays text-only.
	var emotionEmbedding *int64
	if strings.TrimSpace(reply.Emotion) != "" {
		vecs, err := e.sentences.Embed(ctx, []string{reply.Emotion})
		if err != nil {
			return fmt.Errorf("embed emotion: %w", err)
		}
		emb, err := tx.CreateEmbedding(ctx, vecs[0])
		if err != nil {
			return fmt.Errorf("create emotion embedding: %w", err)
		}
		emotionEmbedding = &emb.ID
	}
	if _, err := tx.CreateAssociation(ctx, reply.Emotion, conv.ID, emotionEmbedding); err != nil {
		return fmt.Errorf("create emotion association: %w", err)
	}
	round.Associations++

	words := make([]string, len(reply.AssociationWords))
	for i, w := range reply.AssociationWords {
		words[i] = strings.TrimSpace(w)
	}
	sources := []struct{ text, prefix string }{
		{turn.Message, turn.Speaker},
		{turn.Speaker + " " + turn.Emotion, turn.Speaker},
		{reply.Answer, reply.MyNameIs},
		{reply.Thought, reply.MyNameIs},
		{strings.Join(words, ". ") + ".", ""},
	}
	for _, src := range sources {
		sentences, err := e.sentences.Extract(ctx, src.text, src.prefix)
		if err != nil {
			return fmt.Errorf("embed sentences: %w", err)
		}
		for _, s := range sentences {
			emb, err := tx.CreateEmbedding(ctx, s.Vector)
			if err != nil {
				return fmt.Errorf("create embedding: %w", err)
			}
			if _, err := tx.CreateAssociation(ctx, s.Text, conv.ID, &emb.ID); err != nil {
				return fmt.Errorf("create association %q: %w", s.Text, err)
			}
			round.Associations++
		}
	}

	e.observe.Round(turn.ID).Info().
		Str("engine", embeddingEngine).
		Str("conversation", strconv.FormatInt(conv.ID, 10)).
		Int("associations", round.Associations).
		Msg("ingested round")
	return nil
}
