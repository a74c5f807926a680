package rest

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/davidleathers/attendance-analytics-engine/internal/domain/errors"
)

// KeyedLimiter decides whether one more request from key is allowed.
// cache.RedisRateLimiter satisfies it for limits shared across replicas.
type KeyedLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// limiterEntry is one client's token bucket
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// InMemoryRateLimiter keeps a token bucket per client key
type InMemoryRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

// NewInMemoryRateLimiter allows rps sustained requests with the given burst
func NewInMemoryRateLimiter(rps float64, burst int) *InMemoryRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &InMemoryRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow takes a token from key's bucket
func (rl *InMemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}

// Prune drops buckets idle for longer than the TTL and returns how many went
func (rl *InMemoryRateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// RunPruner prunes idle buckets every interval until ctx is done
func (rl *InMemoryRateLimiter) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune()
		}
	}
}

// RateLimitMiddleware rejects clients over their limit with 429. A limiter
// backend error lets the request through.
func RateLimitMiddleware(limiter KeyedLimiter, ips *ClientIPResolver, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ips.ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), clientIP)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					zap.String("client_ip", clientIP),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(1))
				writeError(w, apperrors.NewRateLimitError("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
