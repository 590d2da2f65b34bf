package store

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recall.db"), opts...)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func TestSQLiteStore_ConversationRoundTrip(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	s := newTestStore(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	in := NewConversation{
		UserName:     "Анна",
		UserMessage:  "Привет, как дела?",
		AgentName:    "Ева",
		AgentMessage: "Хорошо, спасибо!",
		Emotion:      "😊",
		Language:     "ru",
	}
	created, err := s.CreateConversation(ctx, in)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := s.GetConversationByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetConversationByID failed: %v", err)
	}
	if got.ID != created.ID || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("identity mismatch: created %+v, got %+v", created, got)
	}
	if got.UserName != in.UserName || got.UserMessage != in.UserMessage ||
		got.AgentName != in.AgentName || got.AgentMessage != in.AgentMessage ||
		got.Emotion != in.Emotion || got.Language != in.Language {
		t.Errorf("field mismatch: want %+v, got %+v", in, got)
	}

	t.Run("Unset language", func(t *testing.T) {
		c, err := s.CreateConversation(ctx, NewConversation{UserName: "u"})
		if err != nil {
			t.Fatal(err)
		}
		got, err := s.GetConversationByID(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Language != "" {
			t.Errorf("expected empty language, got %q", got.Language)
		}
	})

	t.Run("Not found", func(t *testing.T) {
		_, err := s.GetConversationByID(ctx, 9999)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteStore_Associations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, NewConversation{UserName: "u", UserMessage: "m"})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Text only", func(t *testing.T) {
		a, err := s.CreateAssociation(ctx, "word", conv.ID, nil)
		if err != nil {
			t.Fatalf("CreateAssociation failed: %v", err)
		}
		if a.HasEmbedding() {
			t.Error("expected no embedding reference")
		}
	})

	t.Run("With embedding", func(t *testing.T) {
		emb, err := s.CreateEmbedding(ctx, []float32{0.6, 0.8})
		if err != nil {
			t.Fatalf("CreateEmbedding failed: %v", err)
		}
		a, err := s.CreateAssociation(ctx, "sentence", conv.ID, &emb.ID)
		if err != nil {
			t.Fatalf("CreateAssociation failed: %v", err)
		}
		if !a.HasEmbedding() || *a.EmbeddingID != emb.ID {
			t.Errorf("expected embedding %d, got %v", emb.ID, a.EmbeddingID)
		}
	})

	t.Run("Dangling conversation rejected", func(t *testing.T) {
		if _, err := s.CreateAssociation(ctx, "orphan", 4242, nil); err == nil {
			t.Error("expected foreign key violation")
		}
	})

	t.Run("Dangling embedding rejected", func(t *testing.T) {
		missing := int64(4242)
		if _, err := s.CreateAssociation(ctx, "orphan", conv.ID, &missing); err == nil {
			t.Error("expected foreign key violation")
		}
	})

	t.Run("Empty vector rejected", func(t *testing.T) {
		if _, err := s.CreateEmbedding(ctx, nil); err == nil {
			t.Error("expected error for empty vector")
		}
	})
}

func TestSQLiteStore_ForeignKeysOnEveryConnection(t *testing.T) {
	if got := sqliteDSN(":memory:"); got != "file::memory:?_pragma=foreign_keys(1)" {
		t.Errorf("unexpected DSN %q", got)
	}

	s := newTestStore(t)
	ctx := context.Background()
	// Without idle connections each statement runs on a freshly opened one.
	s.db.SetMaxIdleConns(0)

	for i := 0; i < 3; i++ {
		var on int
		if err := s.db.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&on); err != nil {
			t.Fatalf("PRAGMA foreign_keys failed: %v", err)
		}
		if on != 1 {
			t.Fatalf("connection %d: foreign keys off", i)
		}
	}

	conv, err := s.CreateConversation(ctx, NewConversation{UserName: "u", UserMessage: "m"})
	if err != nil {
		t.Fatal(err)
	}
	missing := int64(4242)
	if _, err := s.CreateAssociation(ctx, "orphan", conv.ID, &missing); err == nil {
		t.Error("expected foreign key violation on a fresh connection")
	}
}

func TestSQLiteStore_GetByKeySimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _ := s.CreateConversation(ctx, NewConversation{UserName: "u"})
	keys := []string{"two words", "word", "unrelated", "word"}
	for _, k := range keys {
		if _, err := s.CreateAssociation(ctx, k, conv.ID, nil); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetByKeySimilarity(ctx, "word", 0.3)
	if err != nil {
		t.Fatalf("GetByKeySimilarity failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(got), got)
	}
	// Exact matches first in insertion order, then the partial match.
	if got[0].Key != "word" || got[1].Key != "word" || got[0].ID > got[1].ID {
		t.Errorf("unexpected leading matches: %+v", got[:2])
	}
	if got[2].Key != "two words" {
		t.Errorf("expected partial match last, got %q", got[2].Key)
	}

	none, err := s.GetByKeySimilarity(ctx, "word", 0.99)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 2 {
		t.Errorf("expected only exact matches at 0.99, got %d", len(none))
	}
}

func TestSQLiteStore_GetSimilarEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Cosine 0.9, 0.7, 0.75 against [1,0] are distances 0.1, 0.3, 0.25.
	var convIDs []int64
	for i, cos := range []float64{0.9, 0.7, 0.75} {
		conv, err := s.CreateConversation(ctx, NewConversation{UserName: "u", UserMessage: string(rune('a' + i))})
		if err != nil {
			t.Fatal(err)
		}
		emb, err := s.CreateEmbedding(ctx, unit(cos))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.CreateAssociation(ctx, "k", conv.ID, &emb.ID); err != nil {
			t.Fatal(err)
		}
		convIDs = append(convIDs, conv.ID)
	}

	got, err := s.GetSimilarEmbedding(ctx, []float32{1, 0}, 3, 0.8)
	if err != nil {
		t.Fatalf("GetSimilarEmbedding failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != convIDs[0] {
		t.Fatalf("expected only conversation %d, got %+v", convIDs[0], got)
	}

	t.Run("Nearest first", func(t *testing.T) {
		got, err := s.GetSimilarEmbedding(ctx, []float32{1, 0}, 3, 0.5)
		if err != nil {
			t.Fatal(err)
		}
		want := []int64{convIDs[0], convIDs[2], convIDs[1]}
		if len(got) != len(want) {
			t.Fatalf("expected %d conversations, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Errorf("position %d: want %d, got %d", i, want[i], got[i].ID)
			}
		}
	})

	t.Run("Top N applied before threshold", func(t *testing.T) {
		got, err := s.GetSimilarEmbedding(ctx, []float32{1, 0}, 1, 0.5)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != convIDs[0] {
			t.Errorf("expected nearest only, got %+v", got)
		}
	})
}

func TestSQLiteStore_GetRandomByDate(t *testing.T) {
	today := time.Date(2026, 5, 2, 12, 0, 0, 0, time.Local)
	now := today.AddDate(0, 0, -1)
	clock := func() time.Time { return now }
	s := newTestStore(t, WithClock(clock), WithRand(rand.New(rand.NewPCG(1, 2))))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := s.CreateConversation(ctx, NewConversation{UserName: "yesterday"}); err != nil {
			t.Fatal(err)
		}
	}
	now = today
	for i := 0; i < 2; i++ {
		if _, err := s.CreateConversation(ctx, NewConversation{UserName: "today"}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("Sample bounded by limit", func(t *testing.T) {
		got, err := s.GetRandomByDate(ctx, today.AddDate(0, 0, -1), 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3, got %d", len(got))
		}
		seen := map[int64]bool{}
		for _, c := range got {
			if c.UserName != "yesterday" {
				t.Errorf("conversation from wrong day: %+v", c)
			}
			if seen[c.ID] {
				t.Errorf("conversation %d sampled twice", c.ID)
			}
			seen[c.ID] = true
		}
	})

	t.Run("Sample bounded by total", func(t *testing.T) {
		got, err := s.GetRandomByDate(ctx, today, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2, got %d", len(got))
		}
	})

	t.Run("Empty day", func(t *testing.T) {
		got, err := s.GetRandomByDate(ctx, today.AddDate(0, 0, 5), 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("expected none, got %d", len(got))
		}
	})
}

func TestSQLiteStore_WithinTx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		var id int64
		err := s.WithinTx(ctx, func(ctx context.Context, tx AssociationStore) error {
			c, err := tx.CreateConversation(ctx, NewConversation{UserName: "committed"})
			if err != nil {
				return err
			}
			id = c.ID
			_, err = tx.CreateAssociation(ctx, "key", c.ID, nil)
			return err
		})
		if err != nil {
			t.Fatalf("WithinTx failed: %v", err)
		}
		if _, err := s.GetConversationByID(ctx, id); err != nil {
			t.Errorf("expected committed conversation, got %v", err)
		}
	})

	t.Run("Rollback on error", func(t *testing.T) {
		var id int64
		boom := errors.New("boom")
		err := s.WithinTx(ctx, func(ctx context.Context, tx AssociationStore) error {
			c, err := tx.CreateConversation(ctx, NewConversation{UserName: "rolled back"})
			if err != nil {
				return err
			}
			id = c.ID
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := s.GetConversationByID(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected rolled back conversation to be absent, got %v", err)
		}
	})

	t.Run("Rollback on panic", func(t *testing.T) {
		var id int64
		func() {
			defer func() { _ = recover() }()
			_ = s.WithinTx(ctx, func(ctx context.Context, tx AssociationStore) error {
				c, err := tx.CreateConversation(ctx, NewConversation{UserName: "panicked"})
				if err != nil {
					return err
				}
				id = c.ID
				panic("collaborator exploded")
			})
		}()
		if _, err := s.GetConversationByID(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected panicked conversation to be absent, got %v", err)
		}
		// The connection must be usable afterwards.
		if _, err := s.CreateConversation(ctx, NewConversation{UserName: "after"}); err != nil {
			t.Errorf("store unusable after panic: %v", err)
		}
	})
}

func TestSQLiteStore_Config(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetConfig("gemini_api_key", "enc:v1:abc"); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	if err := s.SetConfig("gemini_api_key", "enc:v1:def"); err != nil {
		t.Fatalf("SetConfig overwrite failed: %v", err)
	}
	got, err := s.GetConfig("gemini_api_key")
	if err != nil {
		t.Fatal(err)
	}
	if got != "enc:v1:def" {
		t.Errorf("expected overwritten value, got %q", got)
	}
	missing, err := s.GetConfig("nope")
	if err != nil || missing != "" {
		t.Errorf("expected empty value for missing key, got %q, %v", missing, err)
	}
}

func TestSample(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))
	for _, tc := range []struct{ n, k, want int }{
		{0, 3, 0},
		{5, 0, 0},
		{5, 3, 3},
		{2, 5, 2},
	} {
		got := Sample(r, tc.n, tc.k)
		if len(got) != tc.want {
			t.Errorf("Sample(%d,%d) returned %d indices", tc.n, tc.k, len(got))
		}
		seen := map[int]bool{}
		for _, i := range got {
			if i < 0 || i >= tc.n || seen[i] {
				t.Errorf("Sample(%d,%d) produced invalid index set %v", tc.n, tc.k, got)
			}
			seen[i] = true
		}
	}
}
