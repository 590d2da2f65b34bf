// Package provider holds the response generator and sentence embedding
// backends the memory engines talk to.
package provider

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/recall/internal/config"
)

// ErrMalformedReply is returned when a generator answers with something that
// does not decode into a Reply.
var ErrMalformedReply = errors.New("malformed generator reply")

// Reply is the structured answer of a response generator.
type Reply struct {
	MyNameIs         string          `json:"my_name_is"`
	Language         config.Language `json:"language,omitempty"` // empty when unset
	Emotion          string          `json:"emotion"`
	Thought          string          `json:"thought"`
	Answer           string          `json:"answer"`
	Motion           string          `json:"motion"`
	AssociationWords []string        `json:"association_words"`
}

// EmptyReply is substituted when generation fails: every text field is
// empty, language is unset and there are no association words.
func EmptyReply() *Reply {
	return &Reply{AssociationWords: []string{}}
}

// IsEmpty reports whether r carries no content.
func (r *Reply) IsEmpty() bool {
	return r.MyNameIs == "" && r.Language == "" && r.Emotion == "" && r.Thought == "" &&
		r.Answer == "" && r.Motion == "" && len(r.AssociationWords) == 0
}

// Generator produces the agent's reply to a message given background context.
type Generator interface {
	Generate(ctx context.Context, background, message string) (*Reply, error)
	// Name returns the provider identifier (e.g., "stub", "openai").
	Name() string
}

// WordGenerator is implemented by generators that can answer with one word.
type WordGenerator interface {
	GenerateWord(ctx context.Context, background, message string) (string, error)
}

// Embedder returns one fixed-dimension vector per sentence, in input order.
type Embedder interface {
	EmbedSentences(ctx context.Context, sentences []string) ([][]float32, error)
	Name() string
}

// SystemInstruction steers every generator towards the reply shape.
const SystemInstruction = "Answer the emotion field with emojis. Be sure to mention a little about each message " +
	"of the background context that is provided in the message. Use emojis that differ from the user's."

// Prompt renders the user turn sent to a generator.
func Prompt(background, message string) string {
	return "Background context: " + background + "\nMessage: " + message
}
