package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/felixgeelhaar/recall/internal/config"
)

// ReplySchema is the JSON schema of Reply, sent to backends that accept one
// and used to validate every decoded answer.
const ReplySchema = `{
  "type": "object",
  "properties": {
    "my_name_is": {"type": "string"},
    "language": {"type": ["string", "null"]},
    "emotion": {"type": "string"},
    "thought": {"type": "string"},
    "answer": {"type": "string"},
    "motion": {"type": "string"},
    "association_words": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["my_name_is", "emotion", "thought", "answer", "motion", "association_words"]
}`

// WordSchema is the JSON schema of a single-word answer.
const WordSchema = `{
  "type": "object",
  "properties": {"word": {"type": "string"}},
  "required": ["word"]
}`

var (
	replySchema = jsonschema.MustCompileString("reply.json", ReplySchema)
	wordSchema  = jsonschema.MustCompileString("word.json", WordSchema)
)

// wireReply accepts a null language.
type wireReply struct {
	MyNameIs         string   `json:"my_name_is"`
	Language         *string  `json:"language"`
	Emotion          string   `json:"emotion"`
	Thought          string   `json:"thought"`
	Answer           string   `json:"answer"`
	Motion           string   `json:"motion"`
	AssociationWords []string `json:"association_words"`
}

// ParseReply decodes generator output into a Reply. Markdown code fences
// around the JSON are tolerated; an unknown language decodes as unset.
func ParseReply(text string) (*Reply, error) {
	raw := []byte(unwrapFence(text))
	if err := validate(raw, replySchema); err != nil {
		return nil, err
	}

	var w wireReply
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	r := &Reply{
		MyNameIs:         w.MyNameIs,
		Emotion:          w.Emotion,
		Thought:          w.Thought,
		Answer:           w.Answer,
		Motion:           w.Motion,
		AssociationWords: w.AssociationWords,
	}
	if r.AssociationWords == nil {
		r.AssociationWords = []string{}
	}
	if w.Language != nil {
		if lang, ok := config.ParseLanguage(*w.Language); ok {
			r.Language = lang
		}
	}
	return r, nil
}

// ParseWord decodes a {"word": "..."} answer.
func ParseWord(text string) (string, error) {
	raw := []byte(unwrapFence(text))
	if err := validate(raw, wordSchema); err != nil {
		return "", err
	}
	var w struct {
		Word string `json:"word"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return w.Word, nil
}

func validate(raw []byte, schema *jsonschema.Schema) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return nil
}

func unwrapFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// schemaInstruction is appended to prompts of backends without native
// schema support.
func schemaInstruction(schema string) string {
	return "Respond only with a JSON object matching this JSON schema:\n" + schema
}
