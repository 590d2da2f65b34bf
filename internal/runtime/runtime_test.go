package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/store"
)

type recordingUI struct {
	mu       sync.Mutex
	statuses []string
	rounds   []int
	logs     []string
}

func (u *recordingUI) UpdateStatus(status string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statuses = append(u.statuses, status)
}

func (u *recordingUI) UpdateRound(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rounds = append(u.rounds, n)
}

func (u *recordingUI) Log(msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.logs = append(u.logs, msg)
}

var errReadOnly = errors.New("read-only database")

type readOnlyStore struct {
	store.Store
}

func (s readOnlyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.AssociationStore) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx store.AssociationStore) error {
		return fn(ctx, readOnlyTx{tx})
	})
}

type readOnlyTx struct {
	store.AssociationStore
}

func (readOnlyTx) CreateConversation(context.Context, store.NewConversation) (*store.Conversation, error) {
	return nil, errReadOnly
}

func newEngine(t *testing.T, wrap func(store.Store) store.Store, gen provider.Generator) memory.Engine {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "recall.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	var st store.Store = s
	if wrap != nil {
		st = wrap(s)
	}

	cfg := config.Default().Memory
	e, err := memory.New(cfg, memory.Deps{
		Store:     st,
		Generator: gen,
		Embedder:  provider.NewStubEmbedder(64),
	})
	if err != nil {
		t.Fatalf("memory.New failed: %v", err)
	}
	return e
}

func TestRuntime_Round(t *testing.T) {
	ctx := context.Background()

	t.Run("Successful rounds", func(t *testing.T) {
		r := New(newEngine(t, nil, provider.NewStubProvider()), observe.Nop(), nil)
		u := &recordingUI{}
		r.SetUI(u)

		var events []EventType
		r.Events().Subscribe(func(e Event) { events = append(events, e.Type) })

		first, err := r.Round(ctx, "sess-1", memory.Turn{Speaker: "Анна", Message: "Я люблю кошек.", Emotion: "😊"})
		if err != nil {
			t.Fatalf("Round failed: %v", err)
		}
		if first.Reply.Answer == "" || first.Conversation == nil {
			t.Fatalf("unexpected round %+v", first)
		}

		second, err := r.Round(ctx, "sess-1", memory.Turn{Speaker: "Анна", Message: "Я люблю кошек.", Emotion: "😊"})
		if err != nil {
			t.Fatalf("Round failed: %v", err)
		}
		if len(second.Conversations) == 0 {
			t.Error("second round should recall the first")
		}

		state := r.Sessions().GetState("sess-1")
		if state.Rounds != 2 || state.Status != "idle" || state.LastRoundID == "" {
			t.Errorf("unexpected session state %+v", state)
		}
		if len(u.rounds) != 2 || u.rounds[1] != 2 {
			t.Errorf("expected round updates [1 2], got %v", u.rounds)
		}
		if events[0] != EventRoundStart || events[len(events)-1] != EventRoundComplete {
			t.Errorf("unexpected event sequence %v", events)
		}
		if got := testutil.ToFloat64(r.Metrics().rounds.WithLabelValues("embedding", "success")); got != 2 {
			t.Errorf("expected 2 successful rounds, got %v", got)
		}
		if got := testutil.ToFloat64(r.Metrics().active); got != 0 {
			t.Errorf("expected no active rounds, got %v", got)
		}
	})

	t.Run("Generation failure is counted", func(t *testing.T) {
		gen := provider.NewStubProvider()
		gen.Err = errors.New("unavailable")
		r := New(newEngine(t, nil, gen), observe.Nop(), nil)

		var failed int
		r.Events().Subscribe(func(Event) { failed++ }, EventGenerationFailed)

		round, err := r.Round(ctx, "sess-1", memory.Turn{Speaker: "Анна", Message: "Привет."})
		if err != nil {
			t.Fatalf("Round failed: %v", err)
		}
		if !round.GenerationFailed || failed != 1 {
			t.Errorf("expected one generation failure, got %v / %d", round.GenerationFailed, failed)
		}
		if got := testutil.ToFloat64(r.Metrics().generationFailures.WithLabelValues("embedding")); got != 1 {
			t.Errorf("expected failure counter 1, got %v", got)
		}
	})

	t.Run("Store failure propagates", func(t *testing.T) {
		wrap := func(s store.Store) store.Store { return readOnlyStore{s} }
		r := New(newEngine(t, wrap, provider.NewStubProvider()), observe.Nop(), nil)
		u := &recordingUI{}
		r.SetUI(u)

		_, err := r.Round(ctx, "sess-1", memory.Turn{ID: "fixed", Speaker: "Анна", Message: "Привет."})
		if !errors.Is(err, errReadOnly) {
			t.Fatalf("expected store error, got %v", err)
		}
		if !strings.Contains(err.Error(), "fixed") {
			t.Errorf("error should name the round: %v", err)
		}
		if r.Sessions().GetStatus("sess-1") != "failed" {
			t.Errorf("expected failed session, got %q", r.Sessions().GetStatus("sess-1"))
		}
		if got := testutil.ToFloat64(r.Metrics().rounds.WithLabelValues("embedding", "error")); got != 1 {
			t.Errorf("expected 1 failed round, got %v", got)
		}
	})
}

func TestRuntime_Guard(t *testing.T) {
	ctx := context.Background()
	gen := provider.NewStubProvider()
	r := New(newEngine(t, nil, gen), observe.Nop(), nil)
	r.SetGuard(guard.New(guard.Policy{MaxRounds: 1, AllowedSpeakers: []string{"Анна"}}))

	var rejected []string
	r.Events().Subscribe(func(e Event) {
		rejected = append(rejected, e.Rule)
	}, EventRoundRejected)

	_, err := r.Round(ctx, "sess-1", memory.Turn{Speaker: "Борис", Message: "Привет."})
	var v *guard.Violation
	if !errors.As(err, &v) || v.Rule != "allowed_speakers" {
		t.Fatalf("expected speaker violation, got %v", err)
	}
	if r.Sessions().GetState("sess-1") != nil {
		t.Error("a rejected turn must not start a round")
	}

	if _, err := r.Round(ctx, "sess-1", memory.Turn{Speaker: "Анна", Message: "Привет."}); err != nil {
		t.Fatalf("Round failed: %v", err)
	}
	_, err = r.Round(ctx, "sess-1", memory.Turn{Speaker: "Анна", Message: "Ещё раз."})
	if !errors.As(err, &v) || v.Rule != "max_rounds" {
		t.Fatalf("expected budget violation, got %v", err)
	}

	if len(gen.Calls) != 1 {
		t.Errorf("expected one generator call, got %d", len(gen.Calls))
	}
	if len(rejected) != 2 || rejected[0] != "allowed_speakers" || rejected[1] != "max_rounds" {
		t.Errorf("unexpected rejections %v", rejected)
	}
}

func TestRuntime_Recall(t *testing.T) {
	ctx := context.Background()
	gen := provider.NewStubProvider()
	r := New(newEngine(t, nil, gen), observe.Nop(), nil)

	if _, err := r.Round(ctx, "sess-1", memory.Turn{Speaker: "Анна", Message: "Погода сегодня отличная."}); err != nil {
		t.Fatalf("Round failed: %v", err)
	}
	calls := len(gen.Calls)

	rec, err := r.Recall(ctx, memory.Turn{Speaker: "Анна", Message: "Погода сегодня отличная."})
	if err != nil {
		t.Fatalf("Recall failed: %v", err)
	}
	if !strings.Contains(rec.Context, "Negotiator(Анна): Погода сегодня отличная.") {
		t.Errorf("expected the earlier round in context, got %q", rec.Context)
	}
	if len(gen.Calls) != calls {
		t.Error("recall must not call the generator")
	}
}

func TestRuntime_Word(t *testing.T) {
	ctx := context.Background()
	gen := provider.NewStubProvider()
	r := New(newEngine(t, nil, gen), observe.Nop(), nil)

	if _, err := r.Round(ctx, "sess-1", memory.Turn{Speaker: "Анна", Message: "Погода сегодня отличная."}); err != nil {
		t.Fatalf("Round failed: %v", err)
	}

	word, err := r.Word(ctx, memory.Turn{Speaker: "Анна", Message: "Погода сегодня отличная."})
	if err != nil {
		t.Fatalf("Word failed: %v", err)
	}
	if word == "" {
		t.Error("expected a word")
	}
	last := gen.Calls[len(gen.Calls)-1]
	if !strings.Contains(last[0], "Negotiator(Анна): Погода сегодня отличная.") {
		t.Errorf("expected recalled context as background, got %q", last[0])
	}

	gen.Err = errors.New("quota exceeded")
	word, err = r.Word(ctx, memory.Turn{Speaker: "Анна", Message: "Погода сегодня отличная."})
	if err != nil || word != "" {
		t.Errorf("expected empty word without error, got %q, %v", word, err)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(nil)
	m.roundStarted()
	m.roundFinished("keyword", 0, 3, true, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`recall_memory_rounds_total{engine="keyword",status="success"} 1`,
		`recall_memory_generation_failures_total{engine="keyword"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
