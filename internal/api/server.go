package api

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"campusnav/internal/bot"
	"campusnav/internal/catalog"
	"campusnav/internal/config"
	"campusnav/internal/events"
	"campusnav/internal/i18n"
	"campusnav/internal/location"
	"campusnav/internal/metrics"
	"campusnav/internal/model"
	"campusnav/internal/routing"
	"campusnav/internal/speech"
	"campusnav/internal/store"
)

type Server struct {
	Config   config.Config
	Store    store.Store
	Catalog  *catalog.Catalog
	Broker   events.EventBroker
	Routes   routing.Provider
	Messages *i18n.Catalog
	Limiter  *RateLimiter

	cache    routing.Cache
	now      func() time.Time
	mu       sync.Mutex
	sessions map[string]*Session
	closers  []io.Closer
}

// Session is one navigation session: the bot plus the client-facing
// location source and speech link it is wired to.
type Session struct {
	ID        string
	Bot       *bot.Bot
	Source    *location.PushSource
	Link      *ClientLink
	CreatedAt time.Time

	lastSeen atomic.Int64 // unix nanos
	streams  atomic.Int32
}

func (sess *Session) touch(now time.Time) { sess.lastSeen.Store(now.UnixNano()) }

// idle reports whether the session saw no request for ttl and has no open
// event stream or client link.
func (sess *Session) idle(now time.Time, ttl time.Duration) bool {
	if sess.streams.Load() > 0 {
		return false
	}
	return now.Sub(time.Unix(0, sess.lastSeen.Load())) > ttl
}

// stream marks an open SSE or WebSocket connection until the returned
// func is called.
func (sess *Session) stream(now func() time.Time) func() {
	sess.streams.Add(1)
	sess.touch(now())
	return func() {
		sess.touch(now())
		sess.streams.Add(-1)
	}
}

// NewServer wires the service from cfg. Without DATABASE_URL the store is
// in-memory; without REDIS_URL events and route cache stay in-process; an
// empty OSRM URL routes in straight lines.
func NewServer(cfg config.Config) (*Server, error) {
	s := &Server{
		Config:   cfg,
		Limiter:  NewRateLimiter(cfg.RateRPS, cfg.RateBurst),
		now:      time.Now,
		sessions: map[string]*Session{},
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s.Store = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := sp.MigrateDir(cfg.MigrationsDir); err != nil {
				log.Printf("migrate %s: %v", cfg.MigrationsDir, err)
			}
		}
		s.Store = sp
		s.closers = append(s.closers, sp)
	}

	cat, err := catalog.Load(s.Store)
	if err != nil {
		return nil, err
	}
	s.Catalog = cat

	msgs, err := i18n.Load()
	if err != nil {
		return nil, err
	}
	s.Messages = msgs

	var cache routing.Cache = routing.NewMemoryCache(cfg.Routing.CacheTTL)
	if cfg.RedisURL != "" {
		if rb, err := events.NewRedisBroker(cfg.RedisURL); err == nil {
			s.Broker = rb
			s.closers = append(s.closers, rb)
		} else {
			log.Printf("redis broker: %v; using in-memory broker", err)
		}
		if rc, err := routing.NewRedisCache(cfg.RedisURL, cfg.Routing.CacheTTL); err == nil {
			cache = rc
			s.closers = append(s.closers, rc)
		}
	}
	if s.Broker == nil {
		s.Broker = events.NewBroker()
	}

	speed := cfg.Navigation.WalkingSpeedMps
	var provider routing.Provider = routing.ProviderFunc(func(_ context.Context, from, to model.GeoPoint) (model.Route, error) {
		return routing.Direct(from, to, speed), nil
	})
	if cfg.Routing.OSRMURL != "" {
		provider = routing.NewOSRM(cfg.Routing.OSRMURL, cfg.Routing.OSRMProfile)
	}
	s.cache = cache
	s.Routes = routing.NewCached(provider, cache, cfg.Routing.OSRMProfile)
	return s, nil
}

func (s *Server) botConfig() bot.Config {
	n := s.Config.Navigation
	return bot.Config{
		Tracker:           n.Tracker(),
		SpeakThresholdM:   n.SpeakThresholdM,
		MinSampleInterval: n.MinSampleInterval,
		DuplicateWindow:   n.DuplicateWindow,
		TooFarResetDelay:  n.TooFarResetDelay,
	}
}

// CreateSession starts a bot for a new client.
func (s *Server) CreateSession(ctx context.Context, lang model.Language) *Session {
	id := uuid.NewString()
	src := location.NewPushSource()
	link := NewClientLink(src)
	b := bot.New(id, lang, s.botConfig(), bot.Deps{
		Catalog:    s.Catalog,
		Routes:     s.Routes,
		Location:   location.NewService(src, location.Config{}),
		Speech:     speech.NewQueue(link, lang),
		Recognizer: link,
		Events:     s.Broker,
		Messages:   s.Messages,
	})
	link.OnTranscript = func(text string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, _, err := b.ProcessTranscript(ctx, text); err != nil {
			log.Printf("session %s: transcript: %v", id, err)
		}
	}
	now := s.now()
	sess := &Session{ID: id, Bot: b, Source: src, Link: link, CreatedAt: now}
	sess.touch(now)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()

	b.Start(ctx)
	return sess
}

// Session looks up id and counts the lookup as activity.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.touch(s.now())
	}
	return sess, ok
}

func (s *Server) CloseSession(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.Bot.Close()
	sess.Link.Close()
	metrics.ActiveSessions.Dec()
	return true
}

// ReapIdle closes every session idle for longer than ttl and returns how
// many were closed. A non-positive ttl disables reaping.
func (s *Server) ReapIdle(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	var ids []string
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.idle(now, ttl) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if s.CloseSession(id) {
			log.Printf("session %s: closed after %v idle", id, ttl)
			n++
		}
	}
	return n
}

func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close ends every session and releases the store and Redis clients.
func (s *Server) Close() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.CloseSession(id)
	}
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
