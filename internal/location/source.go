package location

import (
	"context"
	"sync"
	"time"

	"campusnav/internal/model"
)

// Source is a geolocation backend. Errors returned or reported should be
// *Error; anything else is classified as general.
type Source interface {
	Current(ctx context.Context, opts Options) (model.PositionSample, error)
	Watch(opts Options, onSample func(model.PositionSample), onError func(error)) (stop func())
}

// PushSource is fed by the client (WebSocket link or HTTP API) with
// samples and errors from the device.
type PushSource struct {
	now func() time.Time

	mu       sync.Mutex
	latest   *model.PositionSample
	watchers map[int]*watcher
	waiters  []chan result
	nextID   int
}

type watcher struct {
	onSample func(model.PositionSample)
	onError  func(error)
}

type result struct {
	sample model.PositionSample
	err    error
}

func NewPushSource() *PushSource {
	return &PushSource{now: time.Now, watchers: map[int]*watcher{}}
}

// Push records a sample and delivers it to watchers and pending Current calls.
func (p *PushSource) Push(s model.PositionSample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = p.now()
	}
	p.mu.Lock()
	p.latest = &s
	ws := p.snapshotLocked()
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- result{sample: s}
	}
	for _, w := range ws {
		if w.onSample != nil {
			w.onSample(s)
		}
	}
}

// PushError reports a device error with its W3C code.
func (p *PushSource) PushError(code int, message string) {
	err := Classify(code, message)
	p.mu.Lock()
	ws := p.snapshotLocked()
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- result{err: err}
	}
	for _, w := range ws {
		if w.onError != nil {
			w.onError(err)
		}
	}
}

func (p *PushSource) snapshotLocked() []*watcher {
	out := make([]*watcher, 0, len(p.watchers))
	for _, w := range p.watchers {
		out = append(out, w)
	}
	return out
}

// Latest returns the most recent sample, if any.
func (p *PushSource) Latest() (model.PositionSample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return model.PositionSample{}, false
	}
	return *p.latest, true
}

// Current returns a cached sample younger than opts.MaximumAge, otherwise
// waits up to opts.Timeout for the next push.
func (p *PushSource) Current(ctx context.Context, opts Options) (model.PositionSample, error) {
	p.mu.Lock()
	if p.latest != nil && opts.MaximumAge > 0 && p.now().Sub(p.latest.Timestamp) <= opts.MaximumAge {
		s := *p.latest
		p.mu.Unlock()
		return s, nil
	}
	ch := make(chan result, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.sample, r.err
	case <-timer.C:
		p.dropWaiter(ch)
		return model.PositionSample{}, Classify(CodeTimeout, "")
	case <-ctx.Done():
		p.dropWaiter(ch)
		return model.PositionSample{}, ctx.Err()
	}
}

func (p *PushSource) dropWaiter(ch chan result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

func (p *PushSource) Watch(_ Options, onSample func(model.PositionSample), onError func(error)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = &watcher{onSample: onSample, onError: onError}
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}
