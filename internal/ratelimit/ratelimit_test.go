package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable time source for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestLimiter creates a Limiter wired to the given fake clock.
func newTestLimiter(limit int, window time.Duration, clock *fakeClock) *Limiter {
	l := New(limit, window)
	l.now = clock.Now
	return l
}

func TestAllowWithinWindow(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		if !l.Allow("tok-1", 0) {
			t.Fatalf("request %d should be allowed", i+1)
		}
		clock.Advance(200 * time.Millisecond)
	}

	if l.Allow("tok-1", 0) {
		t.Fatal("4th request inside the window should be denied")
	}
}

func TestWindowSlides(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		l.Allow("tok", 0)
	}
	if l.Allow("tok", 0) {
		t.Fatal("should be denied with a full window")
	}

	// After the window has fully passed, requests are admitted again.
	clock.Advance(61 * time.Second)
	if !l.Allow("tok", 0) {
		t.Fatal("should be allowed after the window slides past all entries")
	}
}

func TestDeniedRequestsConsumeNothing(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(2, time.Minute, clock)

	l.Allow("tok", 0)
	l.Allow("tok", 0)

	// Hammer the denied path; the window must not grow.
	for i := 0; i < 10; i++ {
		if l.Allow("tok", 0) {
			t.Fatal("should be denied")
		}
	}

	info := l.Status("tok", 0)
	if info.Used != 2 {
		t.Fatalf("denied requests must not be recorded, used = %d", info.Used)
	}
}

func TestAllowDifferentKeys(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(1, time.Minute, clock)

	if !l.Allow("a", 0) {
		t.Fatal("first request for key 'a' should be allowed")
	}
	if l.Allow("a", 0) {
		t.Fatal("second request for key 'a' should be denied")
	}
	// Different key should have its own window.
	if !l.Allow("b", 0) {
		t.Fatal("first request for key 'b' should be allowed")
	}
}

func TestCustomLimitOverride(t *testing.T) {
	tests := []struct {
		name      string
		defaultL  int
		customL   int
		wantAllow int
	}{
		{"custom higher than default", 2, 5, 5},
		{"custom lower than default", 10, 3, 3},
		{"zero custom uses default", 5, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(time.Now())
			l := newTestLimiter(tt.defaultL, time.Minute, clock)

			allowed := 0
			for i := 0; i < tt.wantAllow+2; i++ {
				if l.Allow("key", tt.customL) {
					allowed++
				}
			}
			if allowed != tt.wantAllow {
				t.Fatalf("expected %d allowed, got %d", tt.wantAllow, allowed)
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(100, time.Minute, clock)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("concurrent", 0)
		}()
	}

	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}

	if count != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", count)
	}
}

func TestStatus(t *testing.T) {
	start := time.Now()
	clock := newFakeClock(start)
	l := newTestLimiter(10, time.Minute, clock)

	// Empty window.
	info := l.Status("s", 0)
	if info.Limit != 10 || info.Remaining != 10 || info.Used != 0 {
		t.Fatalf("unexpected empty-window info: %+v", info)
	}
	if !info.ResetAt.Equal(clock.Now().Add(time.Minute)) {
		t.Fatalf("empty window reset should be now+window, got %v", info.ResetAt)
	}

	l.Allow("s", 0)
	clock.Advance(10 * time.Second)
	l.Allow("s", 0)
	l.Allow("s", 0)

	info = l.Status("s", 0)
	if info.Used != 3 {
		t.Fatalf("expected used 3, got %d", info.Used)
	}
	if info.Remaining != 7 {
		t.Fatalf("expected remaining 7, got %d", info.Remaining)
	}
	if info.WindowSeconds != 60 {
		t.Fatalf("expected window 60s, got %d", info.WindowSeconds)
	}
	// Reset is anchored to the oldest entry still in the window.
	if !info.ResetAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("expected reset at oldest+window, got %v", info.ResetAt)
	}
}

func TestStatusDoesNotMutate(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(2, time.Minute, clock)

	for i := 0; i < 50; i++ {
		l.Status("s", 0)
	}
	if got := l.Status("s", 0).Used; got != 0 {
		t.Fatalf("Status must not record requests, used = %d", got)
	}

	// A full window stays full across Status calls.
	l.Allow("s", 0)
	l.Allow("s", 0)
	l.Status("s", 0)
	if l.Allow("s", 0) {
		t.Fatal("Status must not free up window slots")
	}
}

func TestStatusCustomLimit(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(10, time.Minute, clock)

	info := l.Status("s", 20)
	if info.Limit != 20 || info.Remaining != 20 {
		t.Fatalf("unexpected info for custom limit: %+v", info)
	}
}
