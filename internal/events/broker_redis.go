package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so several API
// replicas can serve the same session stream.
type RedisBroker struct {
	rdb *redis.Client
	out *Async

	mu   sync.Mutex
	subs map[chan Event]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	b := &RedisBroker{rdb: redis.NewClient(opt), subs: map[chan Event]*redis.PubSub{}}
	b.out = NewAsync(PublisherFunc(b.publishNow), 1024)
	return b, nil
}

func (b *RedisBroker) Subscribe(sessionID string) chan Event {
	ch := make(chan Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(sessionID))
	// wait for the subscription confirmation
	if _, err := ps.Receive(ctx); err != nil {
		log.Printf("redis subscribe %s: %v", sessionID, err)
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Pub/Sub connection; ch is closed once its reader
// goroutine observes that.
func (b *RedisBroker) Unsubscribe(sessionID string, ch chan Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

// Publish queues evt; the Redis round-trip happens on the outbox goroutine.
func (b *RedisBroker) Publish(sessionID string, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.out.Publish(sessionID, evt)
}

func (b *RedisBroker) publishNow(sessionID string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("redis publish %s: %v", evt.Type, err)
		return
	}
	if err := b.rdb.Publish(ctx, b.chanName(sessionID), data).Err(); err != nil {
		log.Printf("redis publish %s: %v", evt.Type, err)
	}
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error {
	b.out.Close()
	return b.rdb.Close()
}

func (b *RedisBroker) chanName(sessionID string) string { return "session:" + sessionID }
