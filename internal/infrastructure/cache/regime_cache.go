// Package cache provides a read-through cache in front of the regime
// memory repository. Reads check the cache first and fall back to
// Postgres; writes go to Postgres and then refresh the key, so the cache
// never becomes the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/omegaprime/omegaledger/internal/metrics"
	"github.com/omegaprime/omegaledger/internal/persistence"
)

// store is the minimal key-value surface the cache needs. Failures are
// reported as misses; the repository underneath stays authoritative.
type store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Del(ctx context.Context, key string)
	Name() string
}

// memoryStore is the fallback when no Redis address is configured.
type memoryStore struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

func newMemoryStore() *memoryStore { return &memoryStore{m: make(map[string]entry)} }

func (c *memoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

func (c *memoryStore) Del(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *memoryStore) Name() string { return "memory" }

// redisStore wraps a Redis client behind a circuit breaker so a dead Redis
// degrades the cache to pass-through instead of slowing every read.
type redisStore struct {
	r       *redis.Client
	breaker *gobreaker.CircuitBreaker
}

func newRedisStore(client *redis.Client) *redisStore {
	settings := gobreaker.Settings{
		Name:    "regime-cache",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("regime cache breaker state change")
		},
	}
	return &redisStore{
		r:       client,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.r.Get(ctx, key).Bytes()
	})
	if err != nil {
		return nil, false
	}
	return v.([]byte), true
}

func (s *redisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.r.Set(ctx, key, val, ttl).Err()
	})
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("regime cache set skipped")
	}
}

func (s *redisStore) Del(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	_, _ = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.r.Del(ctx, key).Err()
	})
}

func (s *redisStore) Name() string { return "redis" }

// RegimeCache implements persistence.RegimeRepo with a read-through cache
// in front of the wrapped repository.
type RegimeCache struct {
	repo persistence.RegimeRepo
	kv   store
	ttl  time.Duration
	m    *metrics.Registry
}

// Options configures the regime cache.
type Options struct {
	RedisAddr string
	RedisDB   int
	TTL       time.Duration
}

// NewRegimeCache builds a cache over repo. With no Redis address it uses
// an in-process map, which is enough for a single-binary deployment.
func NewRegimeCache(repo persistence.RegimeRepo, opts Options) *RegimeCache {
	var kv store
	if opts.RedisAddr != "" {
		kv = newRedisStore(redis.NewClient(&redis.Options{Addr: opts.RedisAddr, DB: opts.RedisDB}))
	} else {
		kv = newMemoryStore()
	}
	return newCache(repo, kv, opts.TTL)
}

// NewRegimeCacheWithClient builds a cache over repo using an existing
// Redis client.
func NewRegimeCacheWithClient(repo persistence.RegimeRepo, client *redis.Client, ttl time.Duration) *RegimeCache {
	return newCache(repo, newRedisStore(client), ttl)
}

func newCache(repo persistence.RegimeRepo, kv store, ttl time.Duration) *RegimeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RegimeCache{
		repo: repo,
		kv:   kv,
		ttl:  ttl,
		m:    metrics.Default(),
	}
}

func cacheKey(symbol, timeframe string) string {
	return fmt.Sprintf("regime:%s:%s", symbol, timeframe)
}

// Upsert writes through: the repository first, then the cache key, so a
// successful write is immediately visible to cached readers.
func (c *RegimeCache) Upsert(ctx context.Context, state *persistence.RegimeState) error {
	if err := c.repo.Upsert(ctx, state); err != nil {
		return err
	}

	if raw, err := json.Marshal(state); err == nil {
		c.kv.Set(ctx, cacheKey(state.Symbol, state.Timeframe), raw, c.ttl)
	}

	return nil
}

// Get serves from the cache when it can, falling back to the repository
// and backfilling the key on a miss. Absence (nil) is never cached, so "no
// regime classified yet" is always answered by the store.
func (c *RegimeCache) Get(ctx context.Context, symbol, timeframe string) (*persistence.RegimeState, error) {
	key := cacheKey(symbol, timeframe)

	if raw, ok := c.kv.Get(ctx, key); ok {
		var state persistence.RegimeState
		if err := json.Unmarshal(raw, &state); err == nil {
			c.m.CacheHits.WithLabelValues(c.kv.Name()).Inc()
			return &state, nil
		}
		// Unreadable payload: drop it and fall through to the store.
		c.kv.Del(ctx, key)
	}
	c.m.CacheMisses.WithLabelValues(c.kv.Name()).Inc()

	state, err := c.repo.Get(ctx, symbol, timeframe)
	if err != nil || state == nil {
		return state, err
	}

	if raw, err := json.Marshal(state); err == nil {
		c.kv.Set(ctx, key, raw, c.ttl)
	}

	return state, nil
}

// List always goes to the repository; enumeration is rare and must be
// complete.
func (c *RegimeCache) List(ctx context.Context) ([]persistence.RegimeState, error) {
	return c.repo.List(ctx)
}
