// Package bot is the per-session navigation assistant. It owns the
// conversation state and wires the tracker, speech queue, location service
// and route provider together.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"campusnav/internal/catalog"
	"campusnav/internal/events"
	"campusnav/internal/i18n"
	"campusnav/internal/location"
	"campusnav/internal/metrics"
	"campusnav/internal/model"
	"campusnav/internal/nav"
	"campusnav/internal/routing"
	"campusnav/internal/speech"
	"campusnav/internal/store"
)

var (
	// ErrBusy is returned when another selection or listen is in flight.
	ErrBusy = errors.New("bot: operation in progress")
	// ErrUnknownDestination wraps lookups of keys that are not in the catalog.
	ErrUnknownDestination = errors.New("bot: unknown destination")
	ErrUnknownRoute       = errors.New("bot: unknown custom route")
	ErrClosed             = errors.New("bot: session closed")
)

type Config struct {
	Tracker           nav.Config
	SpeakThresholdM   float64
	MinSampleInterval time.Duration
	DuplicateWindow   time.Duration
	TooFarResetDelay  time.Duration
	// OriginTimeout bounds the one-shot fix taken when no sample is known.
	OriginTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tracker:           nav.DefaultConfig(),
		SpeakThresholdM:   20,
		MinSampleInterval: time.Second,
		DuplicateWindow:   2 * time.Second,
		TooFarResetDelay:  3 * time.Second,
		OriginTimeout:     3 * time.Second,
	}
}

// Deps are the collaborators of one bot. Catalog, Routes, Location, Speech
// and Messages are required.
type Deps struct {
	Catalog    *catalog.Catalog
	Routes     routing.Provider
	Location   *location.Service
	Speech     *speech.Queue
	Recognizer speech.Recognizer
	Events     events.Publisher
	Messages   *i18n.Catalog
	Now        func() time.Time
	AfterFunc  func(d time.Duration, f func()) func() bool
}

// Bot serializes its handlers with mu; long calls (routing, recognition,
// location fixes) run outside the lock and are discarded if the
// destination changed meanwhile.
type Bot struct {
	id   string
	cfg  Config
	deps Deps

	tracker *nav.Tracker
	busy    atomic.Bool

	mu             sync.Mutex
	state          model.NavigationState
	chat           []model.ChatMessage
	destination    *model.Destination
	route          *model.Route
	routeInfo      *model.RouteInfo
	last           *model.PositionSample
	limiter        *rate.Limiter
	lastSpoken     string
	lastSpokenAt   time.Time
	routeAnnounced bool
	gen            uint64
	watch          location.WatchHandle
	watching       bool
	stopReset      func() bool
	closed         bool
}

func New(id string, lang model.Language, cfg Config, deps Deps) *Bot {
	d := DefaultConfig()
	if cfg.SpeakThresholdM <= 0 {
		cfg.SpeakThresholdM = d.SpeakThresholdM
	}
	if cfg.MinSampleInterval <= 0 {
		cfg.MinSampleInterval = d.MinSampleInterval
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = d.DuplicateWindow
	}
	if cfg.TooFarResetDelay <= 0 {
		cfg.TooFarResetDelay = d.TooFarResetDelay
	}
	if cfg.OriginTimeout <= 0 {
		cfg.OriginTimeout = d.OriginTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.AfterFunc == nil {
		deps.AfterFunc = func(d time.Duration, f func()) func() bool { return time.AfterFunc(d, f).Stop }
	}
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}
	if deps.Recognizer == nil {
		deps.Recognizer = speech.NullRecognizer{}
	}
	if _, ok := model.ParseLanguage(string(lang)); !ok {
		lang = model.LanguageTamil
	}
	deps.Speech.SetLanguage(lang)
	return &Bot{
		id:      id,
		cfg:     cfg,
		deps:    deps,
		tracker: nav.NewTracker(cfg.Tracker),
		limiter: rate.NewLimiter(rate.Every(cfg.MinSampleInterval), 1),
		state: model.NavigationState{
			CurrentStep: model.StepWelcome,
			Language:    lang,
		},
	}
}

func (b *Bot) ID() string { return b.id }

// Start greets the user and begins watching the device position.
func (b *Bot) Start(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.sayLocked(b.textLocked(i18n.Welcome), 0)
	b.publishStateLocked()
	b.mu.Unlock()

	h := b.deps.Location.StartWatching(func(s model.PositionSample) {
		b.OnPosition(s)
	}, func(err *location.Error) {
		b.HandleLocationError(err)
	}, location.Options{})

	b.mu.Lock()
	b.watch, b.watching = h, true
	b.mu.Unlock()
}

func (b *Bot) SetLanguage(lang model.Language) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Language = lang
	b.deps.Speech.SetLanguage(lang)
	b.sayLocked(b.textLocked(i18n.Welcome), 0)
	b.publishStateLocked()
}

// ToggleMute flips the mute flag and returns the new value. Muting drops
// current and pending speech.
func (b *Bot) ToggleMute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.IsMuted = !b.state.IsMuted
	if b.state.IsMuted {
		b.deps.Speech.Clear()
		b.state.IsSpeaking = false
	}
	b.publishStateLocked()
	return b.state.IsMuted
}

// SelectDestination resolves key, computes a route from the best known
// origin and starts turn-by-turn guidance.
func (b *Bot) SelectDestination(ctx context.Context, key string) error {
	if !b.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer b.busy.Store(false)

	dest, err := b.deps.Catalog.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownDestination, key)
		}
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.state.IsListening {
		b.mu.Unlock()
		return ErrBusy
	}
	gen := b.beginLocked(&dest)
	lang := b.state.Language
	b.sayLocked(b.deps.Messages.Text(lang, i18n.Calculating, dest.DisplayName(lang), dest.Description), 0)
	b.publish(events.TypeNotification, map[string]any{"status": "calculating", "message": b.textLocked(i18n.CalculatingStatus)})
	b.publishStateLocked()
	var origin model.GeoPoint
	haveOrigin := b.last != nil
	if haveOrigin {
		origin = b.last.Point()
	}
	b.mu.Unlock()

	if !haveOrigin {
		origin = b.resolveOrigin(ctx)
	}
	if !b.deps.Location.IsWithinCampus(origin.Lat, origin.Lng) {
		lerr := &location.Error{Type: location.ErrTooFar, Message: "Your location is too far from campus"}
		b.mu.Lock()
		if b.gen == gen {
			b.locationErrorLocked(lerr)
		}
		b.mu.Unlock()
		return lerr
	}

	rt, rerr := b.deps.Routes.Route(ctx, origin, dest.Point())

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen || b.closed {
		return nil
	}
	if rerr != nil {
		log.Printf("session %s: route to %s: %v", b.id, dest.Key, rerr)
		rt = b.fallbackLocked(origin, dest.Point())
	}
	b.applyRouteLocked(rt, dest.Point(), false)
	return nil
}

// SelectCustomRoute navigates a hand-drawn route, one instruction per joint.
func (b *Bot) SelectCustomRoute(ctx context.Context, id string) error {
	r, ok := b.deps.Catalog.CustomRoute(id)
	if !ok || !r.IsActive || len(r.Joints) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRoute, id)
	}
	if !b.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer b.busy.Store(false)

	rt, end := catalog.AsRoute(r)
	last := r.Joints[len(r.Joints)-1]
	dest := model.Destination{Key: r.ID, Name: last.Name, EnglishName: last.Name, Lat: end.Lat, Lng: end.Lng, Description: r.Description}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.beginLocked(&dest)
	b.sayLocked(b.textLocked(i18n.CustomRouteSelected, r.Name), 0)
	details := b.textLocked(i18n.CustomRouteDetails, fmt.Sprintf("%.0f", rt.Summary.TotalDistance), fmt.Sprintf("%g", r.EstimatedTime))
	b.sayLocked(details, 0)
	b.applyRouteLocked(rt, end, false)
	return nil
}

// OnPosition feeds one device sample through the throttle and the tracker.
func (b *Bot) OnPosition(sample model.PositionSample) []nav.Event {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = b.deps.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.last = &sample
	if !b.limiter.AllowN(sample.Timestamp, 1) {
		metrics.PositionSamples.WithLabelValues("throttled").Inc()
		return nil
	}
	metrics.PositionSamples.WithLabelValues("accepted").Inc()
	evs := b.tracker.OnPosition(sample)
	for _, ev := range evs {
		b.deliverLocked(ev)
		if ev.Kind == nav.EventDeviation && b.destination != nil {
			go b.recalculate(b.gen, sample.Point(), b.destination.Point())
		}
	}
	return evs
}

func (b *Bot) recalculate(gen uint64, from, to model.GeoPoint) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	rt, err := b.deps.Routes.Route(ctx, from, to)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen || b.closed || b.tracker.State() != nav.StateActive {
		return
	}
	if err != nil {
		log.Printf("session %s: recalculate: %v", b.id, err)
		rt = b.fallbackLocked(from, to)
	}
	b.applyRouteLocked(rt, to, true)
}

// HandleLocationError reports err to the user. A too_far error sends the
// session back to the welcome screen after TooFarResetDelay.
func (b *Bot) HandleLocationError(err *location.Error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.locationErrorLocked(err)
}

func (b *Bot) locationErrorLocked(err *location.Error) {
	msg := b.textLocked(i18n.LocationErrorKey(string(err.Type)))
	b.sayLocked(msg, speech.PreemptPriority)
	b.publish(events.TypeLocationError, map[string]any{"type": err.Type, "code": err.Code, "message": msg})
	if err.Type != location.ErrTooFar {
		return
	}
	if b.stopReset != nil {
		b.stopReset()
	}
	gen := b.gen
	b.stopReset = b.deps.AfterFunc(b.cfg.TooFarResetDelay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == gen && !b.closed {
			b.resetLocked()
		}
	})
}

// RetryLocation takes a fresh fix with backoff and checks it against the
// campus bounds.
func (b *Bot) RetryLocation(ctx context.Context) (model.PositionSample, error) {
	sample, err := b.deps.Location.RetryWithBackoff(ctx)
	if err != nil {
		var le *location.Error
		if errors.As(err, &le) {
			b.HandleLocationError(le)
		}
		return model.PositionSample{}, err
	}
	if !b.deps.Location.IsWithinCampus(sample.Lat, sample.Lng) {
		le := &location.Error{Type: location.ErrTooFar, Message: "Your location is too far from campus"}
		b.HandleLocationError(le)
		return sample, le
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = &sample
	b.sayLocked(b.textLocked(i18n.LocationSuccess), 0)
	return sample, nil
}

// ProcessTranscript records what the user said and selects the building it
// names, if any.
func (b *Bot) ProcessTranscript(ctx context.Context, text string) (model.Destination, bool, error) {
	b.mu.Lock()
	b.addMessageLocked("user", text)
	b.mu.Unlock()

	dest, ok, err := b.deps.Catalog.Match(ctx, text)
	if err != nil {
		return model.Destination{}, false, err
	}
	if !ok {
		b.mu.Lock()
		b.sayLocked(b.textLocked(i18n.DidNotCatch), 0)
		b.mu.Unlock()
		return model.Destination{}, false, nil
	}
	return dest, true, b.SelectDestination(ctx, dest.Key)
}

// StartListening runs one recognition round and processes the result.
func (b *Bot) StartListening(ctx context.Context) (string, error) {
	transcript, err := b.listen(ctx)
	if err != nil {
		return "", err
	}
	_, _, err = b.ProcessTranscript(ctx, transcript)
	return transcript, err
}

func (b *Bot) listen(ctx context.Context) (string, error) {
	if !b.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer b.busy.Store(false)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrClosed
	}
	if b.state.IsListening {
		b.mu.Unlock()
		return "", ErrBusy
	}
	b.deps.Speech.Stop()
	b.state.IsSpeaking = false
	b.state.IsListening = true
	lang := b.state.Language
	b.publishStateLocked()
	b.mu.Unlock()

	transcript, err := b.deps.Recognizer.Listen(ctx, lang)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.IsListening = false
	b.publishStateLocked()
	if err != nil {
		key := i18n.RecognitionError
		if errors.Is(err, speech.ErrRecognitionUnsupported) {
			key = i18n.SpeechNotSupported
		}
		b.sayLocked(b.textLocked(key), 0)
		return "", err
	}
	return transcript, nil
}

// CancelDestination stops guidance and offers a new selection.
func (b *Bot) CancelDestination() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	b.state.CurrentStep = model.StepWelcome
	b.sayLocked(b.textLocked(i18n.NavigationCancelled), 0)
	b.publish(events.TypeNotification, map[string]any{"status": "cancelled"})
	b.publishStateLocked()
}

// ResetToHome clears the conversation and greets the user again.
func (b *Bot) ResetToHome() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Bot) resetLocked() {
	b.stopLocked()
	b.state.CurrentStep = model.StepWelcome
	b.chat = nil
	b.sayLocked(b.textLocked(i18n.Welcome), 0)
	b.publishStateLocked()
}

// stopLocked ends guidance without touching the chat log. Mute and language
// survive.
func (b *Bot) stopLocked() {
	b.gen++
	b.deps.Speech.Clear()
	b.tracker.Reset()
	if b.stopReset != nil {
		b.stopReset()
		b.stopReset = nil
	}
	b.destination = nil
	b.route = nil
	b.routeInfo = nil
	b.routeAnnounced = false
	b.lastSpoken = ""
	b.lastSpokenAt = time.Time{}
	b.state.SelectedDestination = ""
	b.state.IsSpeaking = false
	b.state.IsListening = false
}

// Close stops watching and drops pending speech. It is idempotent.
func (b *Bot) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.stopLocked()
	h, watching := b.watch, b.watching
	b.watching = false
	b.mu.Unlock()
	if watching {
		b.deps.Location.StopWatching(h)
	}
}

// Snapshot is a consistent copy of the session.
type Snapshot struct {
	ID          string                `json:"id"`
	State       model.NavigationState `json:"state"`
	Messages    []model.ChatMessage   `json:"messages"`
	Progress    nav.Progress          `json:"progress"`
	Destination *model.Destination    `json:"destination,omitempty"`
	RouteInfo   *model.RouteInfo      `json:"routeInfo,omitempty"`
	Position    *model.PositionSample `json:"position,omitempty"`
	Speech      speech.Status         `json:"speech"`
}

func (b *Bot) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		ID:       b.id,
		State:    b.state,
		Messages: append([]model.ChatMessage(nil), b.chat...),
		Progress: b.tracker.Progress(),
		Speech:   b.deps.Speech.Status(),
	}
	if b.destination != nil {
		d := *b.destination
		s.Destination = &d
	}
	if b.routeInfo != nil {
		ri := *b.routeInfo
		s.RouteInfo = &ri
	}
	if b.last != nil {
		p := *b.last
		s.Position = &p
	}
	return s
}

// Route returns the route being followed.
func (b *Bot) Route() (model.Route, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.route == nil {
		return model.Route{}, false
	}
	return *b.route, true
}

// Position returns the last sample received.
func (b *Bot) Position() (model.PositionSample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return model.PositionSample{}, false
	}
	return *b.last, true
}

// internals

func (b *Bot) beginLocked(dest *model.Destination) uint64 {
	b.stopLocked()
	b.destination = dest
	b.state.SelectedDestination = dest.Key
	b.state.CurrentStep = model.StepNavigating
	return b.gen
}

// resolveOrigin prefers a one-shot fix and falls back to the campus center.
func (b *Bot) resolveOrigin(ctx context.Context) model.GeoPoint {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.OriginTimeout)
	defer cancel()
	s, err := b.deps.Location.GetCurrentPosition(ctx, location.Options{Timeout: b.cfg.OriginTimeout})
	if err != nil {
		return b.deps.Location.Config().Center
	}
	return s.Point()
}

func (b *Bot) fallbackLocked(origin, dest model.GeoPoint) model.Route {
	info, ev := b.tracker.OnRouteError(origin, dest)
	metrics.NavigationEvents.WithLabelValues(string(ev.Kind)).Inc()
	metrics.RouteRequests.WithLabelValues(model.RouteSourceDirect, "fallback").Inc()
	b.sayLocked(b.textLocked(i18n.RoutingIssue), speech.PreemptPriority)
	b.publish(events.TypeNotification, map[string]any{"status": "direct_route", "message": ev.Text, "distanceM": info.DistanceM})
	return routing.Direct(origin, dest, b.tracker.Config().WalkingSpeedMps)
}

func (b *Bot) applyRouteLocked(rt model.Route, dest model.GeoPoint, recalculated bool) {
	b.route = &rt
	info := model.RouteInfo{DistanceM: rt.Summary.TotalDistance, DurationSec: rt.Summary.TotalTime, Source: rt.Source}
	b.routeInfo = &info
	start := b.tracker.StartSession(rt, dest, rt.Summary.TotalDistance)
	b.publish(events.TypeRouteCalculated, info)
	if recalculated {
		metrics.NavigationEvents.WithLabelValues("recalculated").Inc()
		b.sayLocked(b.textLocked(i18n.RouteRecalculated, b.deps.Messages.Distance(b.state.Language, info.DistanceM)), 1)
		return
	}
	b.deliverLocked(start)
	if !b.routeAnnounced {
		b.routeAnnounced = true
		lang := b.state.Language
		b.sayLocked(b.textLocked(i18n.RouteCalculated,
			b.deps.Messages.Distance(lang, info.DistanceM),
			b.deps.Messages.Duration(lang, info.DurationSec)), 1)
	}
}

func (b *Bot) deliverLocked(ev nav.Event) {
	metrics.NavigationEvents.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case nav.EventStarted:
		b.publish(events.TypeNavigationStarted, ev)
		b.sayLocked(ev.Text, ev.Priority)
	case nav.EventInstruction:
		b.publish(events.TypeNavigationInstruction, ev)
		now := b.deps.Now()
		if ev.Text == b.lastSpoken && now.Sub(b.lastSpokenAt) < b.cfg.DuplicateWindow {
			return
		}
		if ev.DistanceM > b.cfg.SpeakThresholdM {
			b.addMessageLocked("bot", ev.Text)
			return
		}
		b.lastSpoken, b.lastSpokenAt = ev.Text, now
		b.sayLocked(ev.Text, ev.Priority)
	case nav.EventApproach:
		b.publish(events.TypeNavigationInstruction, ev)
		b.sayLocked(ev.Text, ev.Priority)
	case nav.EventDeviation:
		b.publish(events.TypeNavigationDeviation, ev)
		b.sayLocked(b.textLocked(i18n.Recalculating), ev.Priority)
	case nav.EventArrival:
		// in-flight recalculations must not reopen the finished session
		b.gen++
		b.state.CurrentStep = model.StepArrived
		b.publish(events.TypeNavigationArrived, ev)
		b.sayLocked(b.textLocked(i18n.DestinationReached), ev.Priority)
		b.publishStateLocked()
	}
}

func (b *Bot) textLocked(key string, args ...any) string {
	return b.deps.Messages.Text(b.state.Language, key, args...)
}

func (b *Bot) addMessageLocked(kind, content string) model.ChatMessage {
	m := model.ChatMessage{ID: uuid.NewString(), Type: kind, Content: content, Timestamp: b.deps.Now()}
	b.chat = append(b.chat, m)
	b.publish(events.TypeChatMessage, m)
	return m
}

// sayLocked logs text in the chat and, unless muted, queues it for speech.
func (b *Bot) sayLocked(text string, priority int) {
	b.addMessageLocked("bot", text)
	if b.state.IsMuted {
		return
	}
	b.deps.Speech.Enqueue(speech.Request{
		Text:     text,
		Priority: priority,
		OnStart:  func() { b.setSpeaking(true) },
		OnEnd:    func() { b.setSpeaking(false) },
	})
}

func (b *Bot) setSpeaking(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.IsSpeaking == v {
		return
	}
	b.state.IsSpeaking = v
	b.publishStateLocked()
}

func (b *Bot) publishStateLocked() {
	b.publish(events.TypeStateChanged, b.state)
}

func (b *Bot) publish(typ string, data any) {
	b.deps.Events.Publish(b.id, events.Event{Type: typ, Data: data, At: b.deps.Now()})
}
