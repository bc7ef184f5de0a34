package scan

import (
	"sync"
	"time"

	"firestige.xyz/echoscan/internal/core"
)

// logLimiter caps how many decode failures per layer are logged within a
// window of capture time. Counts are kept per window and reset when the
// window rotates.
type logLimiter struct {
	mu           sync.Mutex
	current      map[core.Layer]int
	windowStart  time.Time
	windowSize   time.Duration
	maxPerWindow int

	suppressed int
}

// LogLimitConfig configures failure log limiting.
type LogLimitConfig struct {
	MaxPerLayer int           // Max failures logged per layer per window (0 = unlimited)
	Window      time.Duration // Window size in capture time (default 10s)
}

// newLogLimiter returns nil when limiting is disabled.
func newLogLimiter(cfg LogLimitConfig) *logLimiter {
	if cfg.MaxPerLayer <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	return &logLimiter{
		current:      make(map[core.Layer]int),
		windowSize:   cfg.Window,
		maxPerWindow: cfg.MaxPerLayer,
	}
}

// Allow reports whether a failure at layer seen at capture time now should
// be logged. A nil limiter allows everything.
func (l *logLimiter) Allow(layer core.Layer, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	// Rotate window if expired; capture time may also jump backwards
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.windowSize || now.Before(l.windowStart) {
		clear(l.current)
		l.windowStart = now
	}

	l.current[layer]++
	if l.current[layer] > l.maxPerWindow {
		l.suppressed++
		return false
	}
	return true
}

// Suppressed returns the total number of failures not logged.
func (l *logLimiter) Suppressed() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressed
}
