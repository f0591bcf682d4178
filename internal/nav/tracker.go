// Package nav turns position samples and a precomputed route into narrated
// navigation events.
package nav

import (
	"fmt"
	"math"
	"sync"
	"time"

	"campusnav/internal/geo"
	"campusnav/internal/model"
)

// Config holds the tracker thresholds.
type Config struct {
	TriggerDistanceM   float64       `yaml:"triggerDistanceM"`
	DeviationDistanceM float64       `yaml:"deviationDistanceM"`
	ApproachDistanceM  float64       `yaml:"approachDistanceM"`
	RecalcInterval     time.Duration `yaml:"recalcInterval"`
	WalkingSpeedMps    float64       `yaml:"walkingSpeedMps"`
	// GeometryStepM is the largest gap left between route coordinates
	// when the deviation check scans them.
	GeometryStepM float64 `yaml:"geometryStepM"`
}

func DefaultConfig() Config {
	return Config{
		TriggerDistanceM:   20,
		DeviationDistanceM: 50,
		ApproachDistanceM:  50,
		RecalcInterval:     30 * time.Second,
		WalkingSpeedMps:    1.4,
		GeometryStepM:      10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TriggerDistanceM <= 0 {
		c.TriggerDistanceM = d.TriggerDistanceM
	}
	if c.DeviationDistanceM <= 0 {
		c.DeviationDistanceM = d.DeviationDistanceM
	}
	if c.ApproachDistanceM <= 0 {
		c.ApproachDistanceM = d.ApproachDistanceM
	}
	if c.RecalcInterval <= 0 {
		c.RecalcInterval = d.RecalcInterval
	}
	if c.WalkingSpeedMps <= 0 {
		c.WalkingSpeedMps = d.WalkingSpeedMps
	}
	if c.GeometryStepM <= 0 {
		c.GeometryStepM = d.GeometryStepM
	}
	return c
}

type State int

const (
	StateInactive State = iota
	StateActive
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateComplete:
		return "complete"
	}
	return "inactive"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = StateActive
	case "complete":
		*s = StateComplete
	case "inactive":
		*s = StateInactive
	default:
		return fmt.Errorf("unknown tracker state %q", b)
	}
	return nil
}

type EventKind string

const (
	EventStarted     EventKind = "started"
	EventInstruction EventKind = "instruction"
	EventDeviation   EventKind = "deviation"
	EventApproach    EventKind = "approach"
	EventArrival     EventKind = "arrival"
	EventDirectRoute EventKind = "direct_route"
)

// Event is one narrated tracker output. Index is the instruction index for
// EventInstruction and -1 otherwise.
type Event struct {
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text"`
	DistanceM float64   `json:"distanceM"`
	Index     int       `json:"index"`
	Priority  int       `json:"priority"`
}

// Session is the active route and its cursor.
// Invariant: LastSpokenIndex <= CurrentIndex <= len(Instructions).
type Session struct {
	Instructions    []model.RouteInstruction `json:"instructions"`
	Waypoints       []model.GeoPoint         `json:"waypoints"`
	Coordinates     []model.GeoPoint         `json:"-"`
	Destination     model.GeoPoint           `json:"destination"`
	CurrentIndex    int                      `json:"currentIndex"`
	LastSpokenIndex int                      `json:"lastSpokenIndex"`
	TotalDistanceM  float64                  `json:"totalDistanceM"`
	approached      bool
}

// Progress is a read-only view of the tracker.
type Progress struct {
	State           State   `json:"state"`
	CurrentIndex    int     `json:"currentIndex"`
	LastSpokenIndex int     `json:"lastSpokenIndex"`
	Instructions    int     `json:"instructions"`
	TotalDistanceM  float64 `json:"totalDistanceM"`
	NextInstruction string  `json:"nextInstruction,omitempty"`
}

// Tracker consumes position samples against one session at a time.
type Tracker struct {
	cfg Config

	mu         sync.Mutex
	state      State
	session    *Session
	lastRecalc time.Time
}

func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg.withDefaults()}
}

func (t *Tracker) Config() Config { return t.cfg }

// StartSession replaces any current session with route and returns the
// start announcement. The recalculation clock is kept so a freshly
// recalculated route cannot immediately signal deviation again.
func (t *Tracker) StartSession(route model.Route, destination model.GeoPoint, totalDistanceM float64) Event {
	s := &Session{
		Instructions:    append([]model.RouteInstruction(nil), route.Instructions...),
		Destination:     destination,
		CurrentIndex:    0,
		LastSpokenIndex: -1,
		TotalDistanceM:  totalDistanceM,
	}
	s.Waypoints = make([]model.GeoPoint, 0, len(s.Instructions)+1)
	for _, in := range s.Instructions {
		s.Waypoints = append(s.Waypoints, in.Coordinate)
	}
	s.Waypoints = append(s.Waypoints, destination)
	if len(route.Coordinates) > 0 {
		s.Coordinates = geo.Densify(route.Coordinates, t.cfg.GeometryStepM)
	} else {
		s.Coordinates = geo.Densify(s.Waypoints, t.cfg.GeometryStepM)
	}

	t.mu.Lock()
	t.session = s
	t.state = StateActive
	t.mu.Unlock()

	return Event{
		Kind:      EventStarted,
		Text:      fmt.Sprintf("Navigation started. Total distance: %s. Follow the blue line on the map.", FormatDistance(totalDistanceM)),
		DistanceM: totalDistanceM,
		Index:     -1,
		Priority:  2,
	}
}

// OnPosition evaluates one sample. At most one instruction is emitted per
// sample. A deviation suppresses the waypoint check; arrival is checked
// first, so reaching the destination off the route still completes it.
func (t *Tracker) OnPosition(sample model.PositionSample) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive || t.session == nil {
		return nil
	}
	s := t.session
	p := sample.Point()

	off := geo.ClosestDistance(p, s.Coordinates)
	if off > t.cfg.DeviationDistanceM && t.recalcDue(sample.Timestamp) {
		if dd := geo.DistanceMeters(p, s.Destination); dd < t.cfg.TriggerDistanceM {
			t.state = StateComplete
			return []Event{arrivalEvent(dd)}
		}
		t.lastRecalc = sample.Timestamp
		return []Event{{Kind: EventDeviation, Text: "Recalculating route...", DistanceM: off, Index: -1, Priority: 1}}
	}

	var out []Event
	if s.CurrentIndex < len(s.Instructions) && s.LastSpokenIndex < s.CurrentIndex {
		d := geo.DistanceMeters(p, s.Waypoints[s.CurrentIndex])
		if d <= t.cfg.TriggerDistanceM {
			out = append(out, Event{
				Kind:      EventInstruction,
				Text:      NormalizeInstruction(s.Instructions[s.CurrentIndex].Text),
				DistanceM: d,
				Index:     s.CurrentIndex,
				Priority:  1,
			})
			s.LastSpokenIndex = s.CurrentIndex
			s.CurrentIndex++
		}
	}

	dd := geo.DistanceMeters(p, s.Destination)
	switch {
	case dd < t.cfg.TriggerDistanceM:
		out = append(out, arrivalEvent(dd))
		t.state = StateComplete
	case dd < t.cfg.ApproachDistanceM && !s.approached:
		s.approached = true
		out = append(out, Event{Kind: EventApproach, Text: "Destination ahead. You are almost there!", DistanceM: dd, Index: -1, Priority: 1})
	}
	return out
}

func arrivalEvent(dd float64) Event {
	return Event{Kind: EventArrival, Text: "You have arrived at your destination!", DistanceM: dd, Index: -1, Priority: 2}
}

func (t *Tracker) recalcDue(now time.Time) bool {
	return t.lastRecalc.IsZero() || now.Sub(t.lastRecalc) >= t.cfg.RecalcInterval
}

// DirectEstimate is the straight-line fallback used when no route is available.
func (t *Tracker) DirectEstimate(origin, destination model.GeoPoint) model.RouteInfo {
	d := geo.DistanceMeters(origin, destination)
	return model.RouteInfo{DistanceM: d, DurationSec: d / t.cfg.WalkingSpeedMps, Source: model.RouteSourceDirect}
}

// OnRouteError returns the straight-line estimate and the notice announcing it.
func (t *Tracker) OnRouteError(origin, destination model.GeoPoint) (model.RouteInfo, Event) {
	info := t.DirectEstimate(origin, destination)
	return info, Event{Kind: EventDirectRoute, Text: "Using direct route due to routing service issue.", DistanceM: info.DistanceM, Index: -1, Priority: 1}
}

// Reset drops the session and the recalculation clock.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.session = nil
	t.state = StateInactive
	t.lastRecalc = time.Time{}
	t.mu.Unlock()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := Progress{State: t.state, LastSpokenIndex: -1}
	if s := t.session; s != nil {
		p.CurrentIndex = s.CurrentIndex
		p.LastSpokenIndex = s.LastSpokenIndex
		p.Instructions = len(s.Instructions)
		p.TotalDistanceM = s.TotalDistanceM
		if s.CurrentIndex < len(s.Instructions) {
			p.NextInstruction = NormalizeInstruction(s.Instructions[s.CurrentIndex].Text)
		}
	}
	return p
}

// Session returns a copy of the active session, if any.
func (t *Tracker) Session() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return Session{}, false
	}
	return *t.session, true
}

// FormatDistance renders meters the way the start announcement does.
func FormatDistance(m float64) string {
	if m > 1000 {
		return fmt.Sprintf("%.1f kilometers", m/1000)
	}
	return fmt.Sprintf("%d meters", int(math.Round(m)))
}
