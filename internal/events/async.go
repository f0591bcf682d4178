package events

import (
	"log"
	"sync"
)

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(sessionID string, evt Event)

func (f PublisherFunc) Publish(sessionID string, evt Event) { f(sessionID, evt) }

type outboxItem struct {
	sessionID string
	evt       Event
}

// Async hands events to next from a single goroutine, so Publish never waits
// on the network. Order is kept; events are dropped once the buffer is full.
type Async struct {
	next Publisher
	ch   chan outboxItem

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsync(next Publisher, size int) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{next: next, ch: make(chan outboxItem, size), done: make(chan struct{})}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for it := range a.ch {
		a.next.Publish(it.sessionID, it.evt)
	}
}

func (a *Async) Publish(sessionID string, evt Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- outboxItem{sessionID: sessionID, evt: evt}:
	default:
		log.Printf("event outbox full; dropped %s for session %s", evt.Type, sessionID)
	}
}

// Close stops accepting events and waits for the buffered ones to go out.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	<-a.done
}
