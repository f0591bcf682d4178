package speech

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"campusnav/internal/model"
)

// fakeEngine blocks every utterance until released or cancelled.
type fakeEngine struct {
	mu       sync.Mutex
	started  []string
	finished []string
	release  chan struct{}
}

func newFakeEngine() *fakeEngine { return &fakeEngine{release: make(chan struct{})} }

func (f *fakeEngine) Speak(ctx context.Context, u Utterance) error {
	f.mu.Lock()
	f.started = append(f.started, u.Text)
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.release:
	}
	f.mu.Lock()
	f.finished = append(f.finished, u.Text)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Voices() []Voice { return nil }

func (f *fakeEngine) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...), append([]string(nil), f.finished...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func waitClosed(t *testing.T, name string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("%s: channel not closed", name)
	}
}

func (f *fakeEngine) startedCount() int {
	s, _ := f.snapshot()
	return len(s)
}

func TestPreemptThenFIFO(t *testing.T) {
	eng := newFakeEngine()
	q := NewQueue(eng, model.LanguageEnglish)

	a := q.Enqueue(Request{Text: "a", Priority: 1})
	waitFor(t, "a to start", func() bool { return eng.startedCount() == 1 })

	b := q.Enqueue(Request{Text: "b", Priority: 3})
	waitClosed(t, "a", a)
	c := q.Enqueue(Request{Text: "c", Priority: 1})

	waitFor(t, "b to start", func() bool { return eng.startedCount() == 2 })
	if !q.IsBusy() {
		t.Fatal("queue should be busy while b plays")
	}
	eng.release <- struct{}{}
	waitClosed(t, "b", b)
	if !q.IsBusy() {
		t.Fatal("queue should be busy until c ends")
	}
	waitFor(t, "c to start", func() bool { return eng.startedCount() == 3 })
	eng.release <- struct{}{}
	waitClosed(t, "c", c)
	waitFor(t, "queue idle", func() bool { return !q.IsBusy() })

	started, finished := eng.snapshot()
	if strings.Join(started, ",") != "a,b,c" {
		t.Fatalf("started order %v", started)
	}
	if strings.Join(finished, ",") != "b,c" {
		t.Fatalf("finished order %v", finished)
	}
}

func TestPriorityOrderingIsStable(t *testing.T) {
	eng := newFakeEngine()
	q := NewQueue(eng, model.LanguageEnglish)
	first := q.Enqueue(Request{Text: "x", Priority: 1})
	waitFor(t, "x to start", func() bool { return eng.startedCount() == 1 })

	var dones []<-chan struct{}
	for _, r := range []Request{{Text: "low", Priority: 0}, {Text: "mid1", Priority: 1}, {Text: "mid2", Priority: 1}} {
		dones = append(dones, q.Enqueue(r))
	}
	if q.Len() != 3 {
		t.Fatalf("want 3 pending, got %d", q.Len())
	}
	for i := 0; i < 4; i++ {
		n := i + 1
		waitFor(t, "next utterance", func() bool { return eng.startedCount() == n })
		eng.release <- struct{}{}
	}
	waitClosed(t, "x", first)
	for i, d := range dones {
		waitClosed(t, []string{"low", "mid1", "mid2"}[i], d)
	}
	started, _ := eng.snapshot()
	if strings.Join(started, ",") != "x,mid1,mid2,low" {
		t.Fatalf("play order %v", started)
	}
}

func TestClearDiscardsPending(t *testing.T) {
	eng := newFakeEngine()
	q := NewQueue(eng, model.LanguageEnglish)
	var mu sync.Mutex
	var events []string
	cb := func(s string) func() {
		return func() { mu.Lock(); events = append(events, s); mu.Unlock() }
	}
	a := q.Enqueue(Request{Text: "a", Priority: 1, OnStart: cb("start a"), OnEnd: cb("end a")})
	waitFor(t, "a to start", func() bool { return eng.startedCount() == 1 })
	b := q.Enqueue(Request{Text: "b", Priority: 1, OnStart: cb("start b"), OnEnd: cb("end b")})

	q.Clear()
	waitClosed(t, "a", a)
	waitClosed(t, "b", b)
	waitFor(t, "queue idle", func() bool { return !q.IsSpeaking() })

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(events, ",") != "start a,end a" {
		t.Fatalf("callbacks %v", events)
	}
	if started, _ := eng.snapshot(); len(started) != 1 {
		t.Fatalf("discarded item must not play: %v", started)
	}
}

func TestStopCancelsCurrentOnly(t *testing.T) {
	eng := newFakeEngine()
	q := NewQueue(eng, model.LanguageEnglish)
	a := q.Enqueue(Request{Text: "a", Priority: 1})
	waitFor(t, "a to start", func() bool { return eng.startedCount() == 1 })
	b := q.Enqueue(Request{Text: "b", Priority: 1})
	q.Stop()
	waitClosed(t, "a", a)
	waitFor(t, "b to start", func() bool { return eng.startedCount() == 2 })
	eng.release <- struct{}{}
	waitClosed(t, "b", b)
}

func TestUnavailableEngineNeverHangs(t *testing.T) {
	q := NewQueue(NullEngine{}, model.LanguageTamil)
	done := q.Enqueue(Request{Text: "வணக்கம்", Priority: 1})
	waitClosed(t, "null engine", done)
	urgent := q.Enqueue(Request{Text: "error", Priority: 2})
	waitClosed(t, "null engine urgent", urgent)
	waitFor(t, "queue idle", func() bool { return !q.IsBusy() })
}

func TestStatusTruncatesText(t *testing.T) {
	eng := newFakeEngine()
	q := NewQueue(eng, model.LanguageEnglish)
	q.Enqueue(Request{Text: "playing", Priority: 1})
	waitFor(t, "start", func() bool { return eng.startedCount() == 1 })
	long := strings.Repeat("x", 60)
	q.Enqueue(Request{Text: long, Priority: 1})

	st := q.Status()
	if !st.IsSpeaking || st.QueueLength != 1 || st.Current != "playing" {
		t.Fatalf("status %+v", st)
	}
	if st.Queue[0].Text != strings.Repeat("x", 50)+"..." || st.Queue[0].Priority != 1 {
		t.Fatalf("queue item %+v", st.Queue[0])
	}
	q.Clear()
}
