package httpx

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/tower/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// DefaultRateLimit keeps a client well under what a controller's API tolerates.
// Allows 600 requests per minute, with 20 available as a burst.
var DefaultRateLimit = RateLimitConfig{
	RequestsPerWindow: 600,
	Window:            time.Minute,
	Burst:             20,
}

// Enabled reports whether c describes a usable limit. A zero or negative value
// in any field disables limiting.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0 && c.Burst > 0
}

// Limit returns the steady-state rate of c.
func (c RateLimitConfig) Limit() rate.Limit {
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

func (c RateLimitConfig) String() string {
	return fmt.Sprintf("%d/%s burst %d", c.RequestsPerWindow, c.Window, c.Burst)
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., host, host and path prefix, etc.)
type KeyExtractor func(*http.Request) string

// HostKeyExtractor keys requests by the host they are sent to, so every
// controller gets its own budget.
func HostKeyExtractor(r *http.Request) string {
	return strings.ToLower(r.URL.Host)
}

// rateLimiter manages rate limiters for different keys
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	mu       sync.Mutex
	// Cleanup old limiters periodically
	lastCleanup time.Time
}

// getLimiter retrieves or creates a rate limiter for the given key
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	// Fast path: limiter already exists
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	// Slow path: create new limiter
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	actual, _ := rl.limiters.LoadOrStore(key, limiter)

	rl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup removes limiters that have not been used recently
func (rl *rateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Only cleanup once every 5 minutes
	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}

	rl.lastCleanup = time.Now()

	// A limiter with a full bucket has been idle
	rl.limiters.Range(func(key, value any) bool {
		limiter := value.(*rate.Limiter)
		if limiter.Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitTransport throttles outgoing requests with the given configuration.
// A request over the limit waits for a token; if its context ends first the
// request is not sent and the context error is returned. A config that is not
// Enabled passes every request straight through.
func RateLimitTransport(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	if !config.Enabled() {
		return func(next http.RoundTripper) http.RoundTripper { return next }
	}

	rl := &rateLimiter{
		rate:        config.Limit(),
		burst:       config.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, sending request")
				return next.RoundTrip(r)
			}

			limiter := rl.getLimiter(key)
			if limiter.Allow() {
				return next.RoundTrip(r)
			}

			log.Debug("rate limit: waiting",
				"key", key,
				"path", r.URL.Path,
				"limit", config.String(),
			)
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit %s: %w", key, err)
			}

			return next.RoundTrip(r)
		})
	}
}

// RateLimitByHost throttles requests per destination host.
func RateLimitByHost(config RateLimitConfig) Middleware {
	return RateLimitTransport(config, HostKeyExtractor)
}
