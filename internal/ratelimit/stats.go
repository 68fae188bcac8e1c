package ratelimit

import (
	"context"
	"sync"
)

// StatsRecorder records admission decisions per key so operators can see
// which tokens are being throttled. Recording is observational only; it never
// influences admission.
type StatsRecorder interface {
	Record(ctx context.Context, key string, allowed bool)
}

// Counts holds cumulative decision totals for one key.
type Counts struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// MemoryStats is an in-process StatsRecorder.
type MemoryStats struct {
	mu     sync.Mutex
	counts map[string]*Counts
}

// NewMemoryStats creates an empty in-memory stats recorder.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{counts: make(map[string]*Counts)}
}

// Record implements StatsRecorder.
func (m *MemoryStats) Record(_ context.Context, key string, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counts[key]
	if !ok {
		c = &Counts{}
		m.counts[key] = c
	}
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
}

// Snapshot returns a copy of the current totals.
func (m *MemoryStats) Snapshot() map[string]Counts {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Counts, len(m.counts))
	for k, c := range m.counts {
		out[k] = *c
	}
	return out
}
