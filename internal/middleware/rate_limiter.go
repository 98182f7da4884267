package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"
)

// Limiter is the shared rate-limit surface; the redis adapter and the
// in-process fallback both satisfy it.
type Limiter interface {
	Allow(key string) bool
}

// RateLimiter enforces per-operator request limits with a sliding
// window. It is the in-process fallback when Redis is unavailable, and
// also the Middleware wrapper around whichever Limiter is in use.
type RateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*rateLimitWindow
	perMinute int
	burst     int
	logger    *log.Logger
}

type rateLimitWindow struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	rl := &RateLimiter{
		windows:   make(map[string]*rateLimitWindow),
		perMinute: perMinute,
		burst:     perMinute * 2,
		logger:    log.New(log.Writer(), "[RATE-LIMIT] ", log.LstdFlags),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether the key has budget left in its current window.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	window, ok := rl.windows[key]
	if !ok || now.Sub(window.windowStart) > time.Minute {
		rl.windows[key] = &rateLimitWindow{count: 1, windowStart: now}
		return true
	}

	window.count++
	if window.count > rl.burst {
		rl.logger.Printf("rate limit exceeded (burst): key=%s count=%d", key, window.count)
		return false
	}
	if window.count > rl.perMinute {
		rl.logger.Printf("rate limit exceeded: key=%s count=%d limit=%d", key, window.count, rl.perMinute)
		return false
	}
	return true
}

// cleanup drops expired windows so long-lived processes do not leak.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, window := range rl.windows {
			if now.Sub(window.windowStart) > 2*time.Minute {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware rejects requests over the operator's budget with
// 429. The limiter may be redis-backed or in-process.
func RateLimitMiddleware(limiter Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := OperatorID(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		if !limiter.Allow("http:" + key) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"rate limit exceeded"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
