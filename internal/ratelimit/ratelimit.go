package ratelimit

import (
	"sync"
	"time"
)

// Limiter implements a sliding-window rate limiter keyed by arbitrary string
// identifiers (e.g. embed token, workspace ID). Each key owns an ordered list
// of request timestamps inside the trailing window; entries age out lazily on
// each check.
//
// State is process-local. In a horizontally scaled deployment each instance
// enforces its own window, so the effective limit is rate × instance count; a
// shared counter store would be needed to close that gap.
type Limiter struct {
	mu           sync.Mutex
	windows      map[string][]time.Time
	defaultLimit int
	window       time.Duration
	now          func() time.Time // injectable clock for testing
}

// Info describes the current state of one key's window. It is safe to expose
// to clients in X-RateLimit-* headers and 429 bodies.
type Info struct {
	Limit         int       `json:"limit"`
	Remaining     int       `json:"remaining"`
	Used          int       `json:"used"`
	WindowSeconds int       `json:"window_seconds"`
	ResetAt       time.Time `json:"reset_at"`
}

// New creates a Limiter allowing defaultLimit requests per window for keys
// without a custom limit.
func New(defaultLimit int, window time.Duration) *Limiter {
	return &Limiter{
		windows:      make(map[string][]time.Time),
		defaultLimit: defaultLimit,
		window:       window,
		now:          time.Now,
	}
}

// effectiveLimit returns customLimit if positive, otherwise the default.
func (l *Limiter) effectiveLimit(customLimit int) int {
	if customLimit > 0 {
		return customLimit
	}
	return l.defaultLimit
}

// prune drops entries that have aged out of the window and writes the
// surviving slice back. Must be called with l.mu held.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	entries := l.windows[key]
	fresh := entries[:0]
	for _, ts := range entries {
		if now.Sub(ts) < l.window {
			fresh = append(fresh, ts)
		}
	}
	if len(fresh) == 0 {
		delete(l.windows, key)
		return nil
	}
	l.windows[key] = fresh
	return fresh
}

// Allow checks whether a request identified by key is permitted and, if so,
// records it in the window. Denied requests are not recorded, so a burst of
// rejections cannot starve the window further. If customLimit is positive it
// overrides the default for this key.
func (l *Limiter) Allow(key string, customLimit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	limit := l.effectiveLimit(customLimit)
	fresh := l.prune(key, now)

	if len(fresh) >= limit {
		return false
	}
	l.windows[key] = append(fresh, now)
	return true
}

// Status returns the current window state for key without consuming a slot or
// otherwise mutating the window.
func (l *Limiter) Status(key string, customLimit int) Info {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	limit := l.effectiveLimit(customLimit)

	used := 0
	var oldest time.Time
	for _, ts := range l.windows[key] {
		if now.Sub(ts) < l.window {
			if used == 0 || ts.Before(oldest) {
				oldest = ts
			}
			used++
		}
	}

	resetAt := now.Add(l.window)
	if used > 0 {
		resetAt = oldest.Add(l.window)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Info{
		Limit:         limit,
		Remaining:     remaining,
		Used:          used,
		WindowSeconds: int(l.window / time.Second),
		ResetAt:       resetAt,
	}
}
