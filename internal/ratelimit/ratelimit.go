// Package ratelimit throttles requests per key, usually a client IP.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a token bucket per key, refilled so that max requests fit
// in each window.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	window   time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemoryLimiter(window time.Duration, max int) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		window:   window,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.limiters[key] = e
	}
	e.lastSeen = now

	if len(m.limiters) > 10000 {
		m.evict(now)
	}
	return e.limiter.AllowN(now, 1), nil
}

// evict drops keys idle for longer than a window; their buckets are full again.
func (m *MemoryLimiter) evict(now time.Time) {
	for k, e := range m.limiters {
		if now.Sub(e.lastSeen) > m.window {
			delete(m.limiters, k)
		}
	}
}

// RedisLimiter counts requests in fixed windows shared by every API instance.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	max    int64
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, window time.Duration, max int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		window: window,
		max:    int64(max),
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	return redis.NewClient(opt), nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := r.key(key, r.now())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= r.max, nil
}

func (r *RedisLimiter) key(key string, at time.Time) string {
	return fmt.Sprintf("%s%s:%d", r.prefix, key, at.UnixNano()/int64(r.window))
}
