package guard

import (
	"errors"
	"strings"
	"testing"
)

func TestGuard_CheckSpeaker(t *testing.T) {
	g := New(Policy{
		AllowedSpeakers: []string{"Анна", "team-*"},
	})

	t.Run("Allowed", func(t *testing.T) {
		if v := g.CheckSpeaker("Анна"); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
		if v := g.CheckSpeaker("team-qa"); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
	})

	t.Run("Blocked", func(t *testing.T) {
		if v := g.CheckSpeaker("Борис"); v == nil {
			t.Error("Expected violation for unknown speaker")
		}
		if v := g.CheckSpeaker("team/qa"); v == nil {
			t.Error("Expected violation: * does not cross /")
		}
	})

	t.Run("Empty list allows everyone", func(t *testing.T) {
		if v := New(Policy{}).CheckSpeaker("anyone"); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
	})
}

func TestGuard_CheckMessage(t *testing.T) {
	g := New(Policy{MaxMessageRunes: 5})

	if v := g.CheckMessage("привет"); v == nil {
		t.Error("Expected violation for 6 runes")
	}
	if v := g.CheckMessage("дом"); v != nil {
		t.Errorf("Unexpected violation: %v", v.Message)
	}
	if v := New(Policy{}).CheckMessage(strings.Repeat("a", 100000)); v != nil {
		t.Error("Zero limit should be unlimited")
	}
}

func TestGuard_CheckBudget(t *testing.T) {
	g := New(Policy{MaxRounds: 2})

	t.Run("Within", func(t *testing.T) {
		if v := g.CheckBudget(1); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
	})

	t.Run("Exceeded", func(t *testing.T) {
		v := g.CheckBudget(2)
		if v == nil || v.Rule != "max_rounds" {
			t.Fatalf("Expected max_rounds violation, got %v", v)
		}
	})
}

func TestGuard_CheckTurn(t *testing.T) {
	g := New(DefaultPolicy)
	if v := g.CheckTurn(100, "user", "hello"); v != nil {
		t.Errorf("Unexpected violation: %v", v.Message)
	}

	v := g.CheckTurn(0, "user", strings.Repeat("x", 4001))
	if v == nil {
		t.Fatal("Expected violation")
	}
	var err error = v
	var target *Violation
	if !errors.As(err, &target) || target.Rule != "max_message_runes" {
		t.Errorf("unexpected error %v", err)
	}
}
