package events

import (
	"sync"
	"time"
)

// Session event types
const (
	TypeChatMessage           = "chat.message"
	TypeStateChanged          = "state.changed"
	TypeNavigationStarted     = "navigation.started"
	TypeNavigationInstruction = "navigation.instruction"
	TypeNavigationDeviation   = "navigation.deviation"
	TypeNavigationArrived     = "navigation.arrived"
	TypeRouteCalculated       = "route.calculated"
	TypeLocationError         = "location.error"
	TypeNotification          = "notification"
	TypeHeartbeat             = "heartbeat"
)

type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// Publisher is the side of the broker the navigation bot needs.
type Publisher interface {
	Publish(sessionID string, evt Event)
}

type EventBroker interface {
	Publisher
	Subscribe(sessionID string) chan Event
	Unsubscribe(sessionID string, ch chan Event)
}

// Broker fans events out to in-process subscribers. Slow subscribers lose events.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // sessionID -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(sessionID string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = map[chan Event]struct{}{}
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[sessionID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, sessionID)
	}
	close(ch)
}

func (b *Broker) Publish(sessionID string, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.Lock()
	for ch := range b.subs[sessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribers reports the number of subscribers of a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(string, Event) {}
