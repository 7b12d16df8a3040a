// Package rate implementa fixed-window rate limiting para los endpoints
// del protocolo. Backend en memoria para single-node, backend Redis
// cuando el storage ya corre sobre Redis.
package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Result es el veredicto de un Allow.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter decide si la request identificada por key puede pasar.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// MemoryLimiter: fixed window por proceso. Suficiente para despliegues
// de un solo nodo o como degradación cuando no hay Redis.
type MemoryLimiter struct {
	max    int64
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	hits   map[string]int64
	starts map[string]time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:    int64(max),
		window: window,
		now:    time.Now,
		hits:   make(map[string]int64),
		starts: make(map[string]time.Time),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start, ok := l.starts[key]
	if !ok || now.Sub(start) >= l.window {
		l.starts[key] = now
		l.hits[key] = 0
		start = now
	}
	l.hits[key]++

	hits := l.hits[key]
	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{Allowed: hits <= l.max, Remaining: remaining}
	if !res.Allowed {
		res.RetryAfter = l.window - now.Sub(start)
	}
	return res, nil
}

// RedisLimiter: fixed window compartida entre nodos (INCR + EXPIRE).
type RedisLimiter struct {
	client *rdb.Client
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, winStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	if incr.Val() == 1 {
		_ = l.client.Expire(ctx, redisKey, l.window).Err()
		ttl = l.client.TTL(ctx, redisKey)
	}

	hits := incr.Val()
	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{Allowed: hits <= l.max, Remaining: remaining}
	if !res.Allowed {
		res.RetryAfter = ttl.Val()
		if res.RetryAfter <= 0 {
			res.RetryAfter = l.window
		}
	}
	return res, nil
}
