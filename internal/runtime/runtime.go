// Package runtime runs chat rounds against a memory engine and reports
// their progress to logs, metrics, events and the UI.
package runtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/ui"
)

// Runtime drives chat rounds.
type Runtime struct {
	engine   memory.Engine
	observe  *observe.Observer
	metrics  *Metrics
	events   *EventBus
	sessions *StateManager
	guard    *guard.Guard
	ui       ui.UI
	newID    func() string
}

func New(e memory.Engine, o *observe.Observer, m *Metrics) *Runtime {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Runtime{
		engine:   e,
		observe:  o,
		metrics:  m,
		events:   NewEventBus(),
		sessions: NewStateManager(),
		ui:       ui.SilentUI{},
		newID:    uuid.NewString,
	}
}

func (r *Runtime) SetUI(u ui.UI) {
	if u != nil {
		r.ui = u
	}
}

// SetGuard makes Round reject turns that break the guard's policy.
func (r *Runtime) SetGuard(g *guard.Guard) {
	r.guard = g
}

// Events returns the bus round events are published on.
func (r *Runtime) Events() *EventBus {
	return r.events
}

// Sessions returns the session tally.
func (r *Runtime) Sessions() *StateManager {
	return r.sessions
}

func (r *Runtime) Metrics() *Metrics {
	return r.metrics
}

// Round runs one chat round for sessionID. A round id is assigned when the
// turn has none.
func (r *Runtime) Round(ctx context.Context, sessionID string, turn memory.Turn) (*memory.Round, error) {
	if turn.ID == "" {
		turn.ID = r.newID()
	}
	ctx, span := r.observe.StartSpan(ctx, "Round")
	defer span.End()

	log := r.observe.Round(turn.ID)
	base := Event{SessionID: sessionID, RoundID: turn.ID, Engine: r.engine.Name(), Speaker: turn.Speaker}
	if v := r.check(sessionID, turn); v != nil {
		rejected := base.as(EventRoundRejected)
		rejected.Rule = v.Rule
		rejected.Err = v
		r.events.Publish(rejected)
		r.ui.Log("Turn rejected: " + v.Message)
		log.Warn().Str("rule", v.Rule).Msg("turn rejected")
		return nil, fmt.Errorf("round %s: %w", turn.ID, v)
	}

	n := r.sessions.BeginRound(sessionID, turn.ID)
	r.ui.UpdateRound(n)
	r.ui.UpdateStatus("Recalling...")
	r.events.Publish(base.as(EventRoundStart))
	log.Info().
		Str("session", sessionID).
		Str("engine", r.engine.Name()).
		Int("round", n).
		Msg("starting round")

	r.metrics.roundStarted()
	start := time.Now()
	round, err := r.engine.Chat(ctx, turn)
	elapsed := time.Since(start)

	if err != nil {
		r.metrics.roundFinished(r.engine.Name(), elapsed, 0, false, err)
		r.sessions.EndRound(sessionID, 0, false, "failed")
		failed := base.as(EventRoundError)
		failed.Err = err
		r.events.Publish(failed)
		r.ui.UpdateStatus("Round failed")
		r.ui.Log(fmt.Sprintf("Round %d failed: %v", n, err))
		log.Error().Err(err).Msg("round failed")
		return nil, fmt.Errorf("round %s: %w", turn.ID, err)
	}

	recalled := len(round.Conversations)
	r.metrics.roundFinished(r.engine.Name(), elapsed, recalled, round.GenerationFailed, nil)
	r.sessions.EndRound(sessionID, recalled, round.GenerationFailed, "idle")
	recalledEvent := base.as(EventRecalled)
	recalledEvent.Recalled = recalled
	r.events.Publish(recalledEvent)
	if round.GenerationFailed {
		r.events.Publish(base.as(EventGenerationFailed))
		r.ui.Log(fmt.Sprintf("Round %d: generator failed, stored an empty reply", n))
	}
	done := base.as(EventRoundComplete)
	done.Conversation = round.Conversation.ID
	done.Associations = round.Associations
	r.events.Publish(done)
	r.ui.Log(fmt.Sprintf("Round %d: recalled %d conversations, stored %d associations", n, recalled, round.Associations))
	r.ui.UpdateStatus("Ready")

	log.Info().
		Str("conversation", strconv.FormatInt(round.Conversation.ID, 10)).
		Str("elapsed", elapsed.String()).
		Int("recalled", recalled).
		Msg("round complete")
	return round, nil
}

func (e Event) as(t EventType) Event {
	e.Type = t
	return e
}

func (r *Runtime) check(sessionID string, turn memory.Turn) *guard.Violation {
	if r.guard == nil {
		return nil
	}
	rounds := 0
	if state := r.sessions.GetState(sessionID); state != nil {
		rounds = state.Rounds
	}
	return r.guard.CheckTurn(rounds, turn.Speaker, turn.Message)
}

// Recall runs retrieval only, for inspecting what a message would recall.
func (r *Runtime) Recall(ctx context.Context, turn memory.Turn) (*memory.Recollection, error) {
	if turn.ID == "" {
		turn.ID = r.newID()
	}
	ctx, span := r.observe.StartSpan(ctx, "Recall")
	defer span.End()

	rec, err := r.engine.Recall(ctx, turn)
	if err != nil {
		r.observe.Round(turn.ID).Error().Err(err).Msg("recall failed")
		return nil, err
	}
	return rec, nil
}

// Word asks for a single word about the turn, with recalled context as
// background. Generation failures yield "".
func (r *Runtime) Word(ctx context.Context, turn memory.Turn) (string, error) {
	if turn.ID == "" {
		turn.ID = r.newID()
	}
	ctx, span := r.observe.StartSpan(ctx, "Word")
	defer span.End()

	word, err := r.engine.Word(ctx, turn)
	if err != nil {
		r.observe.Round(turn.ID).Error().Err(err).Msg("word failed")
		return "", err
	}
	return word, nil
}
