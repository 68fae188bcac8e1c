package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Fallback is the degraded-path limiter: a per-key token bucket applied when
// no managed token record is available to supply a configured limit. It caps
// every key at the same per-minute ceiling and evicts idle keys so hammered
// invalid tokens cannot grow the map without bound.
type Fallback struct {
	mu      sync.Mutex
	entries map[string]*fallbackEntry

	limit   rate.Limit
	burst   int
	idleTTL time.Duration
}

type fallbackEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewFallback creates a Fallback allowing perMinute requests per key.
func NewFallback(perMinute int) *Fallback {
	return &Fallback{
		entries: make(map[string]*fallbackEntry),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		idleTTL: 15 * time.Minute,
	}
}

// Allow reports whether a request for key is permitted under the fallback
// ceiling, consuming a token when it is.
func (f *Fallback) Allow(key string) bool {
	f.mu.Lock()
	ent, ok := f.entries[key]
	if !ok {
		ent = &fallbackEntry{lim: rate.NewLimiter(f.limit, f.burst)}
		f.entries[key] = ent
	}
	ent.lastSeen = time.Now()
	f.mu.Unlock()

	return ent.lim.Allow()
}

// cleanup evicts keys idle longer than the TTL.
func (f *Fallback) cleanup() {
	cutoff := time.Now().Add(-f.idleTTL)

	f.mu.Lock()
	defer f.mu.Unlock()

	for k, ent := range f.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(f.entries, k)
		}
	}
}

// StartJanitor periodically evicts idle keys until the context is cancelled.
func (f *Fallback) StartJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				f.cleanup()
			}
		}
	}()
}
