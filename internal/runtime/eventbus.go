package runtime

import (
	"strconv"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// EventType names a step in the life of a round.
type EventType string

const (
	EventRoundStart       EventType = "round_start"
	EventRecalled         EventType = "recalled"
	EventGenerationFailed EventType = "generation_failed"
	EventRoundComplete    EventType = "round_complete"
	EventRoundError       EventType = "round_error"
	EventRoundRejected    EventType = "round_rejected"
)

// Event describes one step of a round. Fields that do not apply to the
// event type are left zero.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	RoundID   string
	Engine    string
	Speaker   string

	Recalled     int   // EventRecalled
	Conversation int64 // EventRoundComplete
	Associations int   // EventRoundComplete
	Rule         string
	Err          error
}

type EventHandler func(Event)

type subscription struct {
	types   map[EventType]bool // nil matches every type
	handler EventHandler
}

// EventBus delivers round events synchronously, in subscription order.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
	order  []int
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]subscription)}
}

// Subscribe registers handler for the given types, or for every type when
// none are given. The returned func removes the subscription.
func (eb *EventBus) Subscribe(handler EventHandler, types ...EventType) (unsubscribe func()) {
	sub := subscription{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	eb.mu.Lock()
	id := eb.nextID
	eb.nextID++
	eb.subs[id] = sub
	eb.order = append(eb.order, id)
	eb.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			delete(eb.subs, id)
			for i, v := range eb.order {
				if v == id {
					eb.order = append(eb.order[:i], eb.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish hands event to every matching handler. Handlers must not
// subscribe or unsubscribe from inside a delivery.
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, id := range eb.order {
		sub := eb.subs[id]
		if sub.types == nil || sub.types[event.Type] {
			sub.handler(event)
		}
	}
}

// LogEvents returns a handler writing every event to log.
func LogEvents(log *bolt.Logger) EventHandler {
	return func(e Event) {
		entry := log.Info()
		if e.Type == EventRoundError || e.Type == EventRoundRejected {
			entry = log.Warn()
		}
		entry = entry.
			Str("event", string(e.Type)).
			Str("session", e.SessionID).
			Str("round", e.RoundID)
		switch e.Type {
		case EventRecalled:
			entry = entry.Int("recalled", e.Recalled)
		case EventRoundComplete:
			entry = entry.
				Str("conversation", strconv.FormatInt(e.Conversation, 10)).
				Int("associations", e.Associations)
		case EventRoundRejected:
			entry = entry.Str("rule", e.Rule)
		}
		if e.Err != nil {
			entry = entry.Err(e.Err)
		}
		entry.Msg("round event")
	}
}
