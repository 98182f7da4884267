// Package enrich pulls borrower facts from external collaborators: the
// GSTIN registry and the bank statement analyzer. Enrichment failures
// are logged and skipped, never fatal to the pipeline.
package enrich

import (
	"sync"
	"time"
)

// Limiter gates outbound calls per upstream. The redis-backed limiter
// is used when available; Local keeps single-instance deployments safe.
type Limiter interface {
	Allow(key string) bool
}

// LocalLimiter is an in-process fixed-window limiter.
type LocalLimiter struct {
	perMinute int

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

func NewLocalLimiter(perMinute int) *LocalLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &LocalLimiter{perMinute: perMinute, windows: map[string]*window{}}
}

func (l *LocalLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= l.perMinute {
		return false
	}
	w.count++
	return true
}
