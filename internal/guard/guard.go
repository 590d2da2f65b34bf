// Package guard rejects chat turns that fall outside a session policy.
package guard

import (
	"fmt"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines the limits for a chat session. Zero limits are unlimited.
type Policy struct {
	MaxRounds       int      `json:"max_rounds" yaml:"max_rounds"`
	MaxMessageRunes int      `json:"max_message_runes" yaml:"max_message_runes"`
	AllowedSpeakers []string `json:"allowed_speakers" yaml:"allowed_speakers"`
}

// DefaultPolicy accepts any speaker and caps message size.
var DefaultPolicy = Policy{
	MaxRounds:       0,
	MaxMessageRunes: 4000,
	AllowedSpeakers: []string{"*"},
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckSpeaker matches speaker against the allowed glob patterns. An empty
// list allows everyone.
func (g *Guard) CheckSpeaker(speaker string) *Violation {
	if len(g.policy.AllowedSpeakers) == 0 {
		return nil
	}
	for _, pattern := range g.policy.AllowedSpeakers {
		match, err := doublestar.Match(pattern, speaker)
		if err == nil && match {
			return nil
		}
	}
	return &Violation{Rule: "allowed_speakers", Message: "speaker not allowed: " + speaker}
}

// CheckMessage verifies the message length.
func (g *Guard) CheckMessage(message string) *Violation {
	if g.policy.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > g.policy.MaxMessageRunes {
		return &Violation{
			Rule:    "max_message_runes",
			Message: fmt.Sprintf("message exceeds %d characters", g.policy.MaxMessageRunes),
		}
	}
	return nil
}

// CheckBudget verifies that a session which already ran rounds may run another.
func (g *Guard) CheckBudget(rounds int) *Violation {
	if g.policy.MaxRounds > 0 && rounds >= g.policy.MaxRounds {
		return &Violation{Rule: "max_rounds", Message: "round limit reached"}
	}
	return nil
}

// CheckTurn runs every check and returns the first violation.
func (g *Guard) CheckTurn(rounds int, speaker, message string) *Violation {
	if v := g.CheckBudget(rounds); v != nil {
		return v
	}
	if v := g.CheckSpeaker(speaker); v != nil {
		return v
	}
	return g.CheckMessage(message)
}
