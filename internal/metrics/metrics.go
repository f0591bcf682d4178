package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ActiveSessions is the number of open navigation sessions
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "navigation_sessions_active", Help: "Open navigation sessions."},
	)
	// NavigationEvents counts tracker outputs by kind (started, instruction, deviation, arrival, ...)
	NavigationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "navigation_events_total", Help: "Navigation tracker events by kind."},
		[]string{"kind"},
	)
	// PositionSamples counts position samples by outcome (accepted, throttled, rejected)
	PositionSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "position_samples_total", Help: "Position samples by outcome."},
		[]string{"outcome"},
	)
	// LocationErrors counts classified location errors by type
	LocationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "location_errors_total", Help: "Location errors by type."},
		[]string{"type"},
	)
	// SpeechUtterances counts narration requests by outcome (spoken, cancelled, discarded, unavailable)
	SpeechUtterances = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "speech_utterances_total", Help: "Speech requests by outcome."},
		[]string{"outcome"},
	)
	// RouteRequests counts route provider calls by source and status
	RouteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_requests_total", Help: "Route provider requests by source and status."},
		[]string{"source", "status"},
	)
	// RouteLatency tracks route provider latency in milliseconds
	RouteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_request_latency_ms", Help: "Route provider latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"source"},
	)
	// RouteCache counts cache lookups by result (hit, miss)
	RouteCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_cache_lookups_total", Help: "Route cache lookups by result."},
		[]string{"result"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ActiveSessions)
		Registry.MustRegister(NavigationEvents)
		Registry.MustRegister(PositionSamples)
		Registry.MustRegister(LocationErrors)
		Registry.MustRegister(SpeechUtterances)
		Registry.MustRegister(RouteRequests)
		Registry.MustRegister(RouteLatency)
		Registry.MustRegister(RouteCache)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
