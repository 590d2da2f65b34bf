package provider

import (
	"context"
	"hash/fnv"
	"slices"
	"strings"
	"sync"

	"github.com/felixgeelhaar/recall/internal/textsim"
)

// StubProvider is an offline generator. Queued replies are returned first;
// afterwards it answers by echoing the message.
type StubProvider struct {
	mu      sync.Mutex
	Replies []Reply
	// Err, when set, is returned by every Generate call.
	Err error
	// Calls records the (background, message) pairs it was asked about.
	Calls [][2]string
}

var (
	_ Generator     = (*StubProvider)(nil)
	_ WordGenerator = (*StubProvider)(nil)
)

func NewStubProvider(replies ...Reply) *StubProvider {
	return &StubProvider{Replies: replies}
}

func (m *StubProvider) Name() string {
	return "stub"
}

func (m *StubProvider) Generate(ctx context.Context, background, message string) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, [2]string{background, message})
	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Replies) > 0 {
		r := m.Replies[0]
		m.Replies = m.Replies[1:]
		r.AssociationWords = slices.Clone(r.AssociationWords)
		if r.AssociationWords == nil {
			r.AssociationWords = []string{}
		}
		return &r, nil
	}

	return echoReply(background, message), nil
}

func echoReply(background, message string) *Reply {
	first, _, _ := strings.Cut(message, "\n")
	var words []string
	seen := map[string]bool{}
	for _, w := range textsim.Words(first) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	slices.SortStableFunc(words, func(a, b string) int {
		return len([]rune(b)) - len([]rune(a))
	})
	if len(words) > 3 {
		words = words[:3]
	}

	recalled := strings.Count(background, "\n\n")
	thought := "Nothing comes to mind."
	if recalled > 0 {
		thought = "This reminds me of earlier conversations."
	}

	return &Reply{
		MyNameIs:         "Echo",
		Emotion:          "🙂",
		Thought:          thought,
		Answer:           "I hear you. " + first,
		Motion:           "nods",
		AssociationWords: append([]string{}, words...),
	}
}

func (m *StubProvider) GenerateWord(ctx context.Context, background, message string) (string, error) {
	r, err := m.Generate(ctx, background, message)
	if err != nil {
		return "", err
	}
	if len(r.AssociationWords) == 0 {
		return "", nil
	}
	return r.AssociationWords[0], nil
}

// StubEmbedder hashes words into a fixed-dimension bag-of-words vector.
// Sentences with the same words embed identically, which is enough for
// offline use and tests.
type StubEmbedder struct {
	Dimensions int
}

var _ Embedder = (*StubEmbedder)(nil)

func NewStubEmbedder(dimensions int) *StubEmbedder {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &StubEmbedder{Dimensions: dimensions}
}

func (e *StubEmbedder) Name() string {
	return "stub"
}

func (e *StubEmbedder) EmbedSentences(ctx context.Context, sentences []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(sentences))
	for i, s := range sentences {
		out[i] = e.embed(s)
	}
	return out, nil
}

func (e *StubEmbedder) embed(s string) []float32 {
	vec := make([]float32, e.Dimensions)
	for _, w := range textsim.Words(s) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(e.Dimensions))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return textsim.Normalize(vec)
}
