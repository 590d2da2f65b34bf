package memory

import (
	"strings"

	"github.com/felixgeelhaar/recall/internal/store"
)

// TimestampLayout renders conversation timestamps in context blocks.
const TimestampLayout = "2006-01-02 15:04:05"

// ContextAssembler formats recalled conversations into the background
// context handed to the generator. It keeps no state beyond the buffer.
type ContextAssembler struct {
	sb strings.Builder
}

// Append writes one block:
//
//	[timestamp](emotion)
//	Negotiator(user): message
//	Self(agent): message
//	<blank line>
func (a *ContextAssembler) Append(c store.Conversation) {
	a.sb.WriteString("[")
	a.sb.WriteString(c.CreatedAt.Format(TimestampLayout))
	a.sb.WriteString("](")
	a.sb.WriteString(c.Emotion)
	a.sb.WriteString(")\n")
	a.sb.WriteString("Negotiator(")
	a.sb.WriteString(c.UserName)
	a.sb.WriteString("): ")
	a.sb.WriteString(c.UserMessage)
	a.sb.WriteString("\n")
	a.sb.WriteString("Self(")
	a.sb.WriteString(c.AgentName)
	a.sb.WriteString("): ")
	a.sb.WriteString(c.AgentMessage)
	a.sb.WriteString("\n\n")
}

func (a *ContextAssembler) String() string {
	return a.sb.String()
}

// Assemble formats convs in order.
func Assemble(convs []store.Conversation) string {
	var a ContextAssembler
	for _, c := range convs {
		a.Append(c)
	}
	return a.String()
}

// idSet is a set of conversation ids that remembers first-seen order.
type idSet struct {
	seen  map[int64]struct{}
	order []int64
}

func newIDSet() *idSet {
	return &idSet{seen: make(map[int64]struct{})}
}

// Add reports whether id was new.
func (s *idSet) Add(id int64) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *idSet) Has(id int64) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *idSet) IDs() []int64 {
	return s.order
}
