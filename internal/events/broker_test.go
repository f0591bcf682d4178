package events

import (
	"sync"
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	sid := "s1"
	ch := b.Subscribe(sid)

	evt := Event{Type: TypeNotification, Data: map[string]any{"x": 1}}
	b.Publish(sid, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data.(map[string]any)["x"].(int) != 1 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
		if got.At.IsZero() {
			t.Fatalf("publish should stamp the event")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(sid, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// second unsubscribe is a no-op
	b.Unsubscribe(sid, ch)
	if b.Subscribers(sid) != 0 {
		t.Fatalf("subscribers left: %d", b.Subscribers(sid))
	}
}

func TestBrokerIsolatesSessions(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("a")
	other := b.Subscribe("b")
	defer b.Unsubscribe("a", a)
	defer b.Unsubscribe("b", other)

	b.Publish("a", Event{Type: TypeChatMessage})
	select {
	case evt := <-other:
		t.Fatalf("session b received %s", evt.Type)
	case <-a:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout")
	}
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("s")
	defer b.Unsubscribe("s", ch)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("s", Event{Type: TypeHeartbeat})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected buffer full, len=%d", len(ch))
	}
}

func TestAsyncPublishDoesNotWait(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var got []string
	slow := PublisherFunc(func(sessionID string, evt Event) {
		<-release
		mu.Lock()
		got = append(got, evt.Type)
		mu.Unlock()
	})
	a := NewAsync(slow, 8)

	done := make(chan struct{})
	go func() {
		a.Publish("s", Event{Type: TypeChatMessage})
		a.Publish("s", Event{Type: TypeStateChanged})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish waited on a slow backend")
	}

	close(release)
	a.Close()
	a.Publish("s", Event{Type: TypeHeartbeat})
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != TypeChatMessage || got[1] != TypeStateChanged {
		t.Fatalf("delivered %v", got)
	}
}
