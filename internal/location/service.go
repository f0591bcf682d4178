// Package location wraps a geolocation source with typed errors, campus
// bounds checking and retry with exponential backoff.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"campusnav/internal/geo"
	"campusnav/internal/metrics"
	"campusnav/internal/model"
)

// Options mirrors the device geolocation options.
type Options struct {
	HighAccuracy bool          `json:"enableHighAccuracy"`
	Timeout      time.Duration `json:"timeout"`
	MaximumAge   time.Duration `json:"maximumAge"`
}

type Config struct {
	Center     model.GeoPoint `yaml:"center"`
	RadiusM    float64        `yaml:"radiusM"`
	MaxRetries int            `yaml:"maxRetries"`
	BaseDelay  time.Duration  `yaml:"baseDelay"`
	Timeout    time.Duration  `yaml:"timeout"`
	MaxAge     time.Duration  `yaml:"maxAge"`
	WatchAge   time.Duration  `yaml:"watchMaxAge"`
}

// CampusCenter is the reference point for the campus bounds check.
var CampusCenter = model.GeoPoint{Lat: 12.192850, Lng: 79.083730}

func DefaultConfig() Config {
	return Config{
		Center:     CampusCenter,
		RadiusM:    5000,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Timeout:    10 * time.Second,
		MaxAge:     30 * time.Second,
		WatchAge:   15 * time.Second,
	}
}

// MaxRetriesMessage is the final error message of RetryWithBackoff.
const MaxRetriesMessage = "Maximum retry attempts reached. Please check your location settings."

type WatchHandle int

// Service is owned by one navigation session.
type Service struct {
	src Source
	cfg Config

	mu      sync.Mutex
	watches map[WatchHandle]func()
	next    WatchHandle
}

func NewService(src Source, cfg Config) *Service {
	d := DefaultConfig()
	if cfg.RadiusM <= 0 {
		cfg.RadiusM = d.RadiusM
		cfg.Center = d.Center
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = d.BaseDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = d.MaxAge
	}
	if cfg.WatchAge <= 0 {
		cfg.WatchAge = d.WatchAge
	}
	return &Service{src: src, cfg: cfg, watches: map[WatchHandle]func(){}}
}

func (s *Service) Config() Config { return s.cfg }

func (s *Service) withDefaults(opts Options, maxAge time.Duration) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = s.cfg.Timeout
	}
	if opts.MaximumAge <= 0 {
		opts.MaximumAge = maxAge
	}
	opts.HighAccuracy = true
	return opts
}

// GetCurrentPosition fetches a single fix. Failures are *Error.
func (s *Service) GetCurrentPosition(ctx context.Context, opts Options) (model.PositionSample, error) {
	sample, err := s.src.Current(ctx, s.withDefaults(opts, s.cfg.MaxAge))
	if err != nil {
		if ctx.Err() != nil {
			return model.PositionSample{}, ctx.Err()
		}
		return model.PositionSample{}, classify(err)
	}
	return sample, nil
}

// StartWatching subscribes to continuous updates until StopWatching.
func (s *Service) StartWatching(onSuccess func(model.PositionSample), onError func(*Error), opts Options) WatchHandle {
	stop := s.src.Watch(s.withDefaults(opts, s.cfg.WatchAge), onSuccess, func(err error) {
		if onError != nil {
			onError(classify(err))
		}
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.watches[s.next] = stop
	return s.next
}

func (s *Service) StopWatching(h WatchHandle) {
	s.mu.Lock()
	stop := s.watches[h]
	delete(s.watches, h)
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// StopAll releases every watch.
func (s *Service) StopAll() {
	s.mu.Lock()
	watches := s.watches
	s.watches = map[WatchHandle]func(){}
	s.mu.Unlock()
	for _, stop := range watches {
		stop()
	}
}

// IsWithinBounds is a haversine radius check.
func IsWithinBounds(lat, lng float64, center model.GeoPoint, radiusM float64) bool {
	return geo.WithinRadius(model.GeoPoint{Lat: lat, Lng: lng}, center, radiusM)
}

func (s *Service) IsWithinCampus(lat, lng float64) bool {
	return IsWithinBounds(lat, lng, s.cfg.Center, s.cfg.RadiusM)
}

// RetryWithBackoff retries GetCurrentPosition up to MaxRetries times with
// delays of BaseDelay*2^attempt. Permission and unavailability errors are
// returned at once.
func (s *Service) RetryWithBackoff(ctx context.Context) (model.PositionSample, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * s.cfg.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = s.cfg.BaseDelay << s.cfg.MaxRetries

	op := func() (model.PositionSample, error) {
		sample, err := s.GetCurrentPosition(ctx, Options{})
		if err == nil {
			return sample, nil
		}
		var le *Error
		if errors.As(err, &le) && !le.Retryable() {
			return sample, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return sample, backoff.Permanent(ctx.Err())
		}
		return sample, err
	}
	sample, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxRetries+1)),
	)
	if err == nil {
		return sample, nil
	}
	var le *Error
	if errors.As(err, &le) && !le.Retryable() {
		return model.PositionSample{}, le
	}
	if ctx.Err() != nil {
		return model.PositionSample{}, ctx.Err()
	}
	metrics.LocationErrors.WithLabelValues(string(ErrTimeout)).Inc()
	return model.PositionSample{}, &Error{Type: ErrTimeout, Message: MaxRetriesMessage, Code: CodeTimeout}
}

func classify(err error) *Error {
	var le *Error
	if !errors.As(err, &le) {
		le = &Error{Type: ErrGeneral, Message: err.Error()}
	}
	metrics.LocationErrors.WithLabelValues(string(le.Type)).Inc()
	return le
}
