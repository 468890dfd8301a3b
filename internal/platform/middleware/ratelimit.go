package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// bucketIdleTTL is how long a client's bucket survives without requests.
const bucketIdleTTL = 10 * time.Minute

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// Skipper exempts requests from limiting. Nil limits everything.
	Skipper func(echo.Context) bool
}

// DefaultRateLimitConfig returns the limits applied to credential issuance.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
	}
}

// OnlyPaths returns a skipper that limits just the given route paths.
func OnlyPaths(paths ...string) func(echo.Context) bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(c echo.Context) bool {
		p := c.Path()
		if p == "" {
			p = c.Request().URL.Path
		}
		return !set[p]
	}
}

// bucket is one client's token bucket. Callers hold the limiter's lock.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// limiter keeps a bucket per key and forgets keys idle for bucketIdleTTL.
type limiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(rate float64, burst int) *limiter {
	return &limiter{
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// take spends one token for key. When none is left it reports how long
// until the next one.
func (l *limiter) take(key string) (ok bool, remaining int, wait time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	b, found := l.buckets[key]
	if !found {
		b = &bucket{tokens: l.burst, lastSeen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.lastSeen).Seconds()*l.rate)
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), 0
	}
	if l.rate <= 0 {
		return false, 0, time.Second
	}
	return false, 0, time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
}

func (l *limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < bucketIdleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit throttles each client per route with a token bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	lim := newLimiter(cfg.RequestsPerSecond, cfg.BurstSize)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			// Buckets are per client IP and route so login and signup
			// attempts are throttled independently.
			key := c.RealIP() + " " + c.Request().Method + " " + c.Path()

			ok, remaining, wait := lim.take(key)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many attempts, try again later")
			}
			return next(c)
		}
	}
}
