package helpers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 5 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// KeyedLimiter keeps one token bucket per key (user id or client IP).
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewKeyedLimiter allows perSecond events per key with the given burst.
func NewKeyedLimiter(perSecond float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket.
func (l *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than the TTL.
func (l *KeyedLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.seen) > limiterIdleTTL {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// RunSweeper sweeps every minute until ctx is done.
func (l *KeyedLimiter) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
