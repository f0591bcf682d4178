package routing

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"campusnav/internal/metrics"
	"campusnav/internal/model"
)

// Cache stores computed routes by key.
type Cache interface {
	Get(ctx context.Context, key string) (model.Route, bool)
	Put(ctx context.Context, key string, r model.Route)
}

type memEntry struct {
	route   model.Route
	epoch   uint64
	expires time.Time
}

// MemoryCache is an in-process route cache. BumpEpoch invalidates every entry.
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	epoch uint64
	m     map[string]memEntry
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, m: make(map[string]memEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (model.Route, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	epoch := c.epoch
	c.mu.RUnlock()
	if !ok || e.epoch != epoch {
		return model.Route{}, false
	}
	if c.ttl > 0 && c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return model.Route{}, false
	}
	return e.route, true
}

func (c *MemoryCache) Put(_ context.Context, key string, r model.Route) {
	c.mu.Lock()
	c.m[key] = memEntry{route: r, epoch: c.epoch, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *MemoryCache) Epoch() uint64 {
	c.mu.RLock()
	e := c.epoch
	c.mu.RUnlock()
	return e
}

func (c *MemoryCache) BumpEpoch() {
	c.mu.Lock()
	c.epoch++
	c.m = make(map[string]memEntry)
	c.mu.Unlock()
}

// Sweep drops expired entries and entries from an older epoch.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.m {
		if e.epoch != c.epoch || (c.ttl > 0 && now.After(e.expires)) {
			delete(c.m, key)
			n++
		}
	}
	return n
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// RedisCache stores JSON-encoded routes with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (model.Route, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("route cache get %s: %v", key, err)
		}
		return model.Route{}, false
	}
	var r model.Route
	if err := json.Unmarshal(b, &r); err != nil {
		return model.Route{}, false
	}
	return r, true
}

func (c *RedisCache) Put(ctx context.Context, key string, r model.Route) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		log.Printf("route cache put %s: %v", key, err)
	}
}

func (c *RedisCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *RedisCache) Close() error { return c.rdb.Close() }

// Cached wraps a Provider with a Cache. Failed lookups are not cached.
type Cached struct {
	next    Provider
	cache   Cache
	profile string
}

func NewCached(next Provider, cache Cache, profile string) *Cached {
	return &Cached{next: next, cache: cache, profile: profile}
}

func (c *Cached) Route(ctx context.Context, from, to model.GeoPoint) (model.Route, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "route.cached")
	defer span.End()
	key := cacheKey(c.profile, from, to)
	if r, ok := c.cache.Get(ctx, key); ok {
		metrics.RouteCache.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return r, nil
	}
	metrics.RouteCache.WithLabelValues("miss").Inc()
	span.SetAttributes(attribute.Bool("cache.hit", false))
	r, err := c.next.Route(ctx, from, to)
	if err != nil {
		return model.Route{}, err
	}
	c.cache.Put(ctx, key, r)
	return r, nil
}
