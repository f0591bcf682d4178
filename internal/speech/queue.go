package speech

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"campusnav/internal/metrics"
	"campusnav/internal/model"
)

// PreemptPriority and above cancels current playback and flushes the queue.
const PreemptPriority = 2

// Request is one narration request.
type Request struct {
	Text     string
	Priority int
	OnStart  func()
	OnEnd    func()
}

type item struct {
	req    Request
	done   chan struct{}
	cancel context.CancelFunc
}

// Queue plays requests one at a time in descending priority order, FIFO
// within a priority.
type Queue struct {
	engine Engine

	mu       sync.Mutex
	lang     model.Language
	pending  []*item
	current  *item
	draining bool
}

func NewQueue(engine Engine, lang model.Language) *Queue {
	if engine == nil {
		engine = NullEngine{}
	}
	return &Queue{engine: engine, lang: lang}
}

func (q *Queue) SetLanguage(lang model.Language) {
	q.mu.Lock()
	q.lang = lang
	q.mu.Unlock()
}

// Enqueue schedules req. The returned channel is closed when the utterance
// ends, is cancelled, or is discarded by a flush.
func (q *Queue) Enqueue(req Request) <-chan struct{} {
	it := &item{req: req, done: make(chan struct{})}
	q.mu.Lock()
	if req.Priority >= PreemptPriority {
		if q.current != nil && q.current.cancel != nil {
			q.current.cancel()
		}
		q.discardLocked()
		q.pending = []*item{it}
	} else {
		q.pending = append(q.pending, it)
		sort.SliceStable(q.pending, func(i, j int) bool {
			return q.pending[i].req.Priority > q.pending[j].req.Priority
		})
	}
	start := !q.draining
	q.draining = true
	q.mu.Unlock()
	if start {
		go q.drain()
	}
	return it.done
}

func (q *Queue) discardLocked() {
	for _, it := range q.pending {
		close(it.done)
		metrics.SpeechUtterances.WithLabelValues("discarded").Inc()
	}
	q.pending = nil
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		it := q.pending[0]
		q.pending = q.pending[1:]
		ctx, cancel := context.WithCancel(context.Background())
		it.cancel = cancel
		q.current = it
		lang := q.lang
		q.mu.Unlock()

		q.play(ctx, it, lang)
		cancel()

		q.mu.Lock()
		if q.current == it {
			q.current = nil
		}
		q.mu.Unlock()
		close(it.done)
	}
}

func (q *Queue) play(ctx context.Context, it *item, lang model.Language) {
	u := NewUtterance(it.req.Text, lang, q.engine.Voices())
	if it.req.OnStart != nil {
		it.req.OnStart()
	}
	err := q.engine.Speak(ctx, u)
	switch {
	case err == nil:
		metrics.SpeechUtterances.WithLabelValues("spoken").Inc()
	case errors.Is(err, ErrEngineUnavailable):
		metrics.SpeechUtterances.WithLabelValues("unavailable").Inc()
	case ctx.Err() != nil:
		metrics.SpeechUtterances.WithLabelValues("cancelled").Inc()
	default:
		metrics.SpeechUtterances.WithLabelValues("failed").Inc()
		log.Printf("speech: %v", err)
	}
	if it.req.OnEnd != nil {
		it.req.OnEnd()
	}
}

// Stop cancels the current utterance; pending requests still play.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.current != nil && q.current.cancel != nil {
		q.current.cancel()
	}
	q.mu.Unlock()
}

// Clear cancels the current utterance and discards everything pending.
// Discarded requests never see OnStart or OnEnd.
func (q *Queue) Clear() {
	q.mu.Lock()
	if q.current != nil && q.current.cancel != nil {
		q.current.cancel()
	}
	q.discardLocked()
	q.mu.Unlock()
}

// IsSpeaking is true while an utterance plays or the loop is draining.
func (q *Queue) IsSpeaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// IsBusy is IsSpeaking or a non-empty pending list.
func (q *Queue) IsBusy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining || len(q.pending) > 0
}

// Len is the number of pending requests, excluding the one playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

type StatusItem struct {
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

type Status struct {
	IsSpeaking  bool         `json:"isSpeaking"`
	QueueLength int          `json:"queueLength"`
	Current     string       `json:"current,omitempty"`
	Queue       []StatusItem `json:"queue"`
}

func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Status{IsSpeaking: q.draining, QueueLength: len(q.pending), Queue: make([]StatusItem, 0, len(q.pending))}
	if q.current != nil {
		st.Current = truncate(q.current.req.Text)
	}
	for _, it := range q.pending {
		st.Queue = append(st.Queue, StatusItem{Text: truncate(it.req.Text), Priority: it.req.Priority})
	}
	return st
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= 50 {
		return s
	}
	return string(r[:50]) + "..."
}
