package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// Limiter gates ingestion requests per anonymized client key. The in-process
// implementation below is best-effort under horizontal scaling; swap in a
// shared-store implementation behind this interface when running more than
// one instance.
type Limiter interface {
	Check(key string) Result
}

type window struct {
	count int
	reset time.Time
}

// FixedWindowLimiter counts requests per key in fixed windows. Expired
// windows reset lazily on the next access; a periodic sweep bounds the size
// of the key map.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	windowSize time.Duration
	max        int
	now        func() time.Time
}

func NewFixedWindowLimiter(windowSize time.Duration, max int) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		windows:    make(map[string]*window),
		windowSize: windowSize,
		max:        max,
		now:        time.Now,
	}
}

func (l *FixedWindowLimiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.reset) {
		w = &window{reset: now.Add(l.windowSize)}
		l.windows[key] = w
	}

	if w.count >= l.max {
		return Result{Allowed: false, Remaining: 0, ResetTime: w.reset}
	}
	w.count++
	return Result{Allowed: true, Remaining: l.max - w.count, ResetTime: w.reset}
}

// Sweep drops expired windows. Correctness does not depend on it; it only
// keeps the key map from growing without bound.
func (l *FixedWindowLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.After(w.reset) {
			delete(l.windows, key)
		}
	}
}

// StartSweeper runs Sweep on the given interval until stop is closed.
func (l *FixedWindowLimiter) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-stop:
				return
			}
		}
	}()
}
