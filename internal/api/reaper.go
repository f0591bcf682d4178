package api

import (
	"log"
	"time"
)

const (
	reapEvery   = time.Minute
	limiterIdle = 10 * time.Minute
)

// Reaper periodically closes idle sessions, forgets quiet rate-limit
// clients and sweeps expired in-memory routes.
type Reaper struct {
	Server   *Server
	Interval time.Duration
	Stop     chan struct{}
}

func NewReaper(s *Server) *Reaper {
	return &Reaper{Server: s, Interval: reapEvery, Stop: make(chan struct{})}
}

func (r *Reaper) Start() {
	go func() {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Stop:
				return
			case <-ticker.C:
				r.sweepOnce(r.Server.now())
			}
		}
	}()
}

func (r *Reaper) sweepOnce(now time.Time) {
	s := r.Server
	sessions := s.ReapIdle(now, s.Config.SessionIdleTTL)
	clients := s.Limiter.Evict(now.Add(-limiterIdle))
	routes := 0
	if c, ok := s.cache.(interface{ Sweep() int }); ok {
		routes = c.Sweep()
	}
	if sessions+clients+routes > 0 {
		log.Printf("reaper: closed %d sessions, evicted %d clients, swept %d routes", sessions, clients, routes)
	}
}
