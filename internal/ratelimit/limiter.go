package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalBucket is an in-process token bucket per key, for single-instance deployments.
type LocalBucket struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	capacity int
	refill   rate.Limit
	idle     time.Duration
	now      func() time.Time
}

// NewLocalBucket builds a limiter with the same capacity/refill semantics as TokenBucket.
// Keys unused for idle are forgotten on the next call.
func NewLocalBucket(capacity int, refillPerSecond float64, idle time.Duration) *LocalBucket {
	return &LocalBucket{
		visitors: make(map[string]*visitor),
		capacity: capacity,
		refill:   rate.Limit(refillPerSecond),
		idle:     idle,
		now:      time.Now,
	}
}

func (b *LocalBucket) Allow(_ context.Context, key string) (bool, float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.idle > 0 {
		for k, v := range b.visitors {
			if now.Sub(v.lastSeen) > b.idle {
				delete(b.visitors, k)
			}
		}
	}
	v, ok := b.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(b.refill, b.capacity)}
		b.visitors[key] = v
	}
	v.lastSeen = now
	allowed := v.limiter.AllowN(now, 1)
	return allowed, v.limiter.TokensAt(now), nil
}
