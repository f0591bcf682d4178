package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campusnav/internal/catalog"
	"campusnav/internal/events"
	"campusnav/internal/i18n"
	"campusnav/internal/location"
	"campusnav/internal/model"
	"campusnav/internal/nav"
	"campusnav/internal/routing"
	"campusnav/internal/speech"
	"campusnav/internal/store"
)

var (
	t0      = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	origin  = model.GeoPoint{Lat: 12.1904, Lng: 79.0835}
	library = model.GeoPoint{Lat: 12.1925, Lng: 79.0835}
)

func libraryRoute(from, to model.GeoPoint) model.Route {
	var coords []model.GeoPoint
	for lat := from.Lat; lat <= to.Lat+1e-9; lat += 0.0001 {
		coords = append(coords, model.GeoPoint{Lat: lat, Lng: from.Lng})
	}
	return model.Route{
		Instructions: []model.RouteInstruction{
			{Text: "Head north on Campus Road for 120 m", Coordinate: from},
			{Text: "Turn right onto Library Lane for 110 m", Coordinate: model.GeoPoint{Lat: 12.1915, Lng: 79.0835}},
			{Text: "You have arrived at your destination", Coordinate: to},
		},
		Coordinates: coords,
		Summary:     model.RouteSummary{TotalDistance: 240, TotalTime: 171},
		Source:      model.RouteSourceOSRM,
	}
}

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(_ string, evt events.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, evt)
	r.mu.Unlock()
}

func (r *recorder) has(typ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.evs {
		if e.Type == typ {
			return true
		}
	}
	return false
}

type fakeEngine struct {
	mu     sync.Mutex
	spoken []string
}

func (e *fakeEngine) Speak(_ context.Context, u speech.Utterance) error {
	e.mu.Lock()
	e.spoken = append(e.spoken, u.Text)
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) Voices() []speech.Voice { return nil }

type fakeRecognizer struct {
	text string
	err  error
}

func (r fakeRecognizer) Listen(context.Context, model.Language) (string, error) { return r.text, r.err }

type harness struct {
	bot      *Bot
	events   *recorder
	engine   *fakeEngine
	src      *location.PushSource
	calls    atomic.Int32
	lastFrom atomic.Value
	reset    func()
	delay    time.Duration
}

func newHarness(t *testing.T, p routing.Provider, rec speech.Recognizer) *harness {
	t.Helper()
	cat, err := catalog.Load(store.NewMemory())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	h := &harness{events: &recorder{}, engine: &fakeEngine{}, src: location.NewPushSource()}
	if p == nil {
		p = routing.ProviderFunc(func(ctx context.Context, from, to model.GeoPoint) (model.Route, error) {
			return libraryRoute(from, to), nil
		})
	}
	counting := routing.ProviderFunc(func(ctx context.Context, from, to model.GeoPoint) (model.Route, error) {
		h.calls.Add(1)
		h.lastFrom.Store(from)
		return p.Route(ctx, from, to)
	})
	cfg := DefaultConfig()
	cfg.OriginTimeout = 50 * time.Millisecond
	h.bot = New("s1", model.LanguageEnglish, cfg, Deps{
		Catalog:    cat,
		Routes:     counting,
		Location:   location.NewService(h.src, location.Config{}),
		Speech:     speech.NewQueue(h.engine, model.LanguageEnglish),
		Recognizer: rec,
		Events:     h.events,
		Messages:   i18n.MustLoad(),
		Now:        func() time.Time { return t0 },
		AfterFunc: func(d time.Duration, f func()) func() bool {
			h.delay, h.reset = d, f
			return func() bool { return true }
		},
	})
	t.Cleanup(h.bot.Close)
	return h
}

func chatContains(s Snapshot, sub string) bool {
	for _, m := range s.Messages {
		if strings.Contains(m.Content, sub) {
			return true
		}
	}
	return false
}

func at(lat, lng float64, sec int) model.PositionSample {
	return model.PositionSample{Lat: lat, Lng: lng, Timestamp: t0.Add(time.Duration(sec) * time.Second)}
}

func TestSelectDestinationStartsGuidance(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.bot.Start(context.Background())
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))

	if err := h.bot.SelectDestination(context.Background(), "library"); err != nil {
		t.Fatalf("select: %v", err)
	}
	s := h.bot.Snapshot()
	if s.State.CurrentStep != model.StepNavigating || s.State.SelectedDestination != "library" {
		t.Fatalf("state: %+v", s.State)
	}
	if s.RouteInfo == nil || s.RouteInfo.DistanceM != 240 || s.Progress.State != nav.StateActive {
		t.Fatalf("route: %+v progress: %+v", s.RouteInfo, s.Progress)
	}
	if got := h.lastFrom.Load().(model.GeoPoint); got != origin {
		t.Fatalf("origin: %+v", got)
	}
	for _, want := range []string{
		"I'll guide you to Library",
		"Navigation started. Total distance: 240 meters.",
		"Route calculated! Distance: 240 meters, estimated time: 3 minutes.",
	} {
		if !chatContains(s, want) {
			t.Fatalf("missing chat %q in %+v", want, s.Messages)
		}
	}
	if !h.events.has(events.TypeRouteCalculated) || !h.events.has(events.TypeNavigationStarted) {
		t.Fatalf("events: %+v", h.events.evs)
	}
}

func TestWalkToArrival(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))
	if err := h.bot.SelectDestination(context.Background(), "library"); err != nil {
		t.Fatalf("select: %v", err)
	}
	sec := 2
	for lat := origin.Lat; lat <= library.Lat+1e-9; lat += 0.0001 {
		h.bot.OnPosition(at(lat, origin.Lng, sec))
		sec += 2
	}
	s := h.bot.Snapshot()
	if s.State.CurrentStep != model.StepArrived || s.Progress.State != nav.StateComplete {
		t.Fatalf("expected arrival, got %+v / %+v", s.State, s.Progress)
	}
	for _, want := range []string{"Start walking", "Turn right", "You have reached your destination!"} {
		if !chatContains(s, want) {
			t.Fatalf("missing %q in %+v", want, s.Messages)
		}
	}
	if !h.events.has(events.TypeNavigationArrived) || !h.events.has(events.TypeNavigationInstruction) {
		t.Fatalf("events missing")
	}
	// complete sessions ignore further samples
	if evs := h.bot.OnPosition(at(library.Lat, library.Lng, sec+10)); len(evs) != 0 {
		t.Fatalf("events after arrival: %+v", evs)
	}
}

func TestSamplesAreThrottled(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))
	if err := h.bot.SelectDestination(context.Background(), "library"); err != nil {
		t.Fatalf("select: %v", err)
	}
	early := at(origin.Lat, origin.Lng, 0)
	early.Timestamp = early.Timestamp.Add(300 * time.Millisecond)
	if evs := h.bot.OnPosition(early); evs != nil {
		t.Fatalf("sample inside the interval should be dropped, got %+v", evs)
	}
	if p, _ := h.bot.Position(); !p.Timestamp.Equal(early.Timestamp) {
		t.Fatalf("dropped samples still update the position")
	}
	evs := h.bot.OnPosition(at(origin.Lat, origin.Lng, 2))
	if len(evs) != 1 || evs[0].Kind != nav.EventInstruction {
		t.Fatalf("expected first instruction, got %+v", evs)
	}
}

func TestRoutingErrorFallsBackToDirect(t *testing.T) {
	failing := routing.ProviderFunc(func(context.Context, model.GeoPoint, model.GeoPoint) (model.Route, error) {
		return model.Route{}, routing.ErrNoRoute
	})
	h := newHarness(t, failing, nil)
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))
	if err := h.bot.SelectDestination(context.Background(), "library"); err != nil {
		t.Fatalf("select: %v", err)
	}
	s := h.bot.Snapshot()
	if s.RouteInfo == nil || s.RouteInfo.Source != model.RouteSourceDirect {
		t.Fatalf("route info: %+v", s.RouteInfo)
	}
	if !chatContains(s, "Routing service issue. Using direct route.") {
		t.Fatalf("missing routing notice: %+v", s.Messages)
	}
	if s.Progress.State != nav.StateActive {
		t.Fatalf("direct route should still be navigable")
	}
}

func TestTooFarOriginResetsHome(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.bot.OnPosition(at(13.0827, 80.2707, 0))
	err := h.bot.SelectDestination(context.Background(), "library")
	var le *location.Error
	if !errors.As(err, &le) || le.Type != location.ErrTooFar {
		t.Fatalf("want too_far, got %v", err)
	}
	if h.calls.Load() != 0 {
		t.Fatalf("no route should be requested")
	}
	s := h.bot.Snapshot()
	if !chatContains(s, "too far from campus") {
		t.Fatalf("missing too_far message: %+v", s.Messages)
	}
	if h.reset == nil || h.delay != 3*time.Second {
		t.Fatalf("reset not scheduled: %v", h.delay)
	}
	h.reset()
	s = h.bot.Snapshot()
	if s.State.CurrentStep != model.StepWelcome || s.State.SelectedDestination != "" {
		t.Fatalf("state after reset: %+v", s.State)
	}
	if len(s.Messages) != 1 || !strings.Contains(s.Messages[0].Content, "campus guide") {
		t.Fatalf("chat after reset: %+v", s.Messages)
	}
}

func TestSelectWithoutFixUsesCampusCenter(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.bot.SelectDestination(context.Background(), "library"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := h.lastFrom.Load().(model.GeoPoint); got != location.CampusCenter {
		t.Fatalf("origin: %+v", got)
	}
}

func TestDeviationRecalculates(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))
	if err := h.bot.SelectDestination(context.Background(), "library"); err != nil {
		t.Fatalf("select: %v", err)
	}
	evs := h.bot.OnPosition(at(12.1910, 79.0845, 2))
	if len(evs) != 1 || evs[0].Kind != nav.EventDeviation {
		t.Fatalf("expected deviation, got %+v", evs)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if chatContains(h.bot.Snapshot(), "Route recalculated. New distance:") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s := h.bot.Snapshot()
	if !chatContains(s, "Recalculating route...") || !chatContains(s, "Route recalculated. New distance:") {
		t.Fatalf("chat: %+v", s.Messages)
	}
	if h.calls.Load() != 2 {
		t.Fatalf("provider calls: %d", h.calls.Load())
	}
	if got := h.lastFrom.Load().(model.GeoPoint); got.Lng != 79.0845 {
		t.Fatalf("recalculation should start from the deviating sample: %+v", got)
	}
}

func TestProcessTranscript(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))

	if _, ok, err := h.bot.ProcessTranscript(context.Background(), "blah blah"); ok || err != nil {
		t.Fatalf("unexpected match: %v %v", ok, err)
	}
	if !chatContains(h.bot.Snapshot(), "I didn't catch which building") {
		t.Fatalf("missing didn't-catch reply")
	}

	dest, ok, err := h.bot.ProcessTranscript(context.Background(), "take me to the library")
	if !ok || err != nil || dest.Key != "library" {
		t.Fatalf("match: %+v %v %v", dest, ok, err)
	}
	s := h.bot.Snapshot()
	if s.State.SelectedDestination != "library" {
		t.Fatalf("not navigating: %+v", s.State)
	}
	var user int
	for _, m := range s.Messages {
		if m.Type == "user" {
			user++
		}
	}
	if user != 2 {
		t.Fatalf("user messages: %d", user)
	}
}

func TestStartListening(t *testing.T) {
	h := newHarness(t, nil, fakeRecognizer{text: "library please"})
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))
	got, err := h.bot.StartListening(context.Background())
	if err != nil || got != "library please" {
		t.Fatalf("listen: %q %v", got, err)
	}
	s := h.bot.Snapshot()
	if s.State.IsListening || s.State.SelectedDestination != "library" {
		t.Fatalf("state: %+v", s.State)
	}

	h2 := newHarness(t, nil, nil)
	if _, err := h2.bot.StartListening(context.Background()); !errors.Is(err, speech.ErrRecognitionUnsupported) {
		t.Fatalf("want unsupported, got %v", err)
	}
	if !chatContains(h2.bot.Snapshot(), "speech recognition is not supported") {
		t.Fatalf("missing unsupported message")
	}
}

func TestBusyGuard(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := routing.ProviderFunc(func(ctx context.Context, from, to model.GeoPoint) (model.Route, error) {
		close(entered)
		<-release
		return libraryRoute(from, to), nil
	})
	h := newHarness(t, slow, nil)
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))
	done := make(chan error, 1)
	go func() { done <- h.bot.SelectDestination(context.Background(), "library") }()
	<-entered
	if err := h.bot.SelectDestination(context.Background(), "cse"); !errors.Is(err, ErrBusy) {
		t.Fatalf("want ErrBusy, got %v", err)
	}
	if _, err := h.bot.StartListening(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("listen while busy: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("select: %v", err)
	}
}

func TestCancelDiscardsInFlightRoute(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := routing.ProviderFunc(func(ctx context.Context, from, to model.GeoPoint) (model.Route, error) {
		close(entered)
		<-release
		return libraryRoute(from, to), nil
	})
	h := newHarness(t, slow, nil)
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))
	done := make(chan error, 1)
	go func() { done <- h.bot.SelectDestination(context.Background(), "library") }()
	<-entered
	h.bot.CancelDestination()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("select: %v", err)
	}
	s := h.bot.Snapshot()
	if s.RouteInfo != nil || s.Destination != nil || s.Progress.State != nav.StateInactive {
		t.Fatalf("stale route applied: %+v", s)
	}
	if s.State.CurrentStep != model.StepWelcome || !chatContains(s, "Navigation cancelled.") {
		t.Fatalf("state: %+v", s.State)
	}
}

func TestUnknownDestination(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.bot.SelectDestination(context.Background(), "nowhere"); !errors.Is(err, ErrUnknownDestination) {
		t.Fatalf("want ErrUnknownDestination, got %v", err)
	}
	if err := h.bot.SelectCustomRoute(context.Background(), "nowhere"); !errors.Is(err, ErrUnknownRoute) {
		t.Fatalf("want ErrUnknownRoute, got %v", err)
	}
}

func TestSelectCustomRoute(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.bot.SelectCustomRoute(context.Background(), "gate-to-library"); err != nil {
		t.Fatalf("custom route: %v", err)
	}
	s := h.bot.Snapshot()
	if s.RouteInfo == nil || s.RouteInfo.Source != model.RouteSourceCustom || s.RouteInfo.DistanceM != 240 {
		t.Fatalf("route info: %+v", s.RouteInfo)
	}
	if !chatContains(s, "Custom route selected:") || !chatContains(s, "Distance: 240m, Time: 3 minutes") {
		t.Fatalf("chat: %+v", s.Messages)
	}
	if h.calls.Load() != 0 {
		t.Fatalf("custom routes must not hit the provider")
	}
	rt, ok := h.bot.Route()
	if !ok || len(rt.Instructions) != 4 {
		t.Fatalf("route: %+v", rt)
	}
}

func TestMuteAndLanguage(t *testing.T) {
	h := newHarness(t, nil, nil)
	if !h.bot.ToggleMute() {
		t.Fatalf("first toggle should mute")
	}
	h.bot.SetLanguage(model.LanguageTamil)
	s := h.bot.Snapshot()
	if !s.State.IsMuted || s.State.Language != model.LanguageTamil || s.Speech.QueueLength != 0 {
		t.Fatalf("state: %+v speech: %+v", s.State, s.Speech)
	}
	if !chatContains(s, "வணக்கம்") {
		t.Fatalf("expected Tamil greeting: %+v", s.Messages)
	}
	if h.bot.ToggleMute() {
		t.Fatalf("second toggle should unmute")
	}
}

func TestLocationErrorFromWatch(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.bot.Start(context.Background())
	h.src.PushError(location.CodePermissionDenied, "")
	s := h.bot.Snapshot()
	if !chatContains(s, "Location permission denied.") {
		t.Fatalf("chat: %+v", s.Messages)
	}
	if !h.events.has(events.TypeLocationError) {
		t.Fatalf("location.error not published")
	}
	if h.reset != nil {
		t.Fatalf("only too_far schedules a reset")
	}
	// samples pushed by the client reach the bot through the watch
	h.src.Push(at(origin.Lat, origin.Lng, 0))
	if _, ok := h.bot.Position(); !ok {
		t.Fatalf("watch did not deliver the sample")
	}
}

func TestLateRecalculationAfterArrivalIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	var n atomic.Int32
	p := routing.ProviderFunc(func(ctx context.Context, from, to model.GeoPoint) (model.Route, error) {
		if n.Add(1) > 1 {
			<-release
		}
		return libraryRoute(from, to), nil
	})
	h := newHarness(t, p, nil)
	h.bot.OnPosition(at(origin.Lat, origin.Lng, 0))
	if err := h.bot.SelectDestination(context.Background(), "library"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if evs := h.bot.OnPosition(at(12.1910, 79.0845, 2)); len(evs) != 1 || evs[0].Kind != nav.EventDeviation {
		t.Fatalf("expected deviation, got %+v", evs)
	}
	deadline := time.Now().Add(time.Second)
	for h.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	evs := h.bot.OnPosition(at(library.Lat, library.Lng, 4))
	if len(evs) == 0 || evs[len(evs)-1].Kind != nav.EventArrival {
		t.Fatalf("expected arrival, got %+v", evs)
	}

	close(release)
	deadline = time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if s := h.bot.Snapshot(); s.Progress.State != nav.StateComplete || chatContains(s, "Route recalculated") {
			t.Fatalf("finished session reopened: %+v", s.Progress)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if evs := h.bot.OnPosition(at(library.Lat, library.Lng, 6)); len(evs) != 0 {
		t.Fatalf("arrival announced twice: %+v", evs)
	}
	if s := h.bot.Snapshot(); s.State.CurrentStep != model.StepArrived {
		t.Fatalf("step %s", s.State.CurrentStep)
	}
}
