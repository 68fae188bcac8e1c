package analytics

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mockStore records all batches that were inserted.
type mockStore struct {
	mu      sync.Mutex
	batches [][]Event
}

func (m *mockStore) BatchInsert(ctx context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(events))
	copy(cp, events)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *mockStore) totalInserted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func sampleEvent(kind string) Event {
	return Event{
		AgentKey:    "agent-1",
		PublicToken: "tok-1",
		Kind:        kind,
		Question:    "how do returns work?",
		Timestamp:   time.Now(),
	}
}

func TestCollector_RecordAddsToBuffer(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, time.Hour) // large batch size, long interval

	c.Record(sampleEvent(EventQuery))
	c.Record(sampleEvent(EventFeedback))

	c.mu.Lock()
	bufLen := len(c.buffer)
	c.mu.Unlock()

	if bufLen != 2 {
		t.Fatalf("expected buffer length 2, got %d", bufLen)
	}
	if ms.totalInserted() != 0 {
		t.Fatalf("expected 0 inserted before flush, got %d", ms.totalInserted())
	}
}

func TestCollector_FlushOnBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		records   int
		wantFlush int
	}{
		{
			name:      "exact batch size triggers flush",
			batchSize: 3,
			records:   3,
			wantFlush: 3,
		},
		{
			name:      "under batch size does not flush",
			batchSize: 5,
			records:   3,
			wantFlush: 0,
		},
		{
			name:      "double batch size triggers two flushes",
			batchSize: 2,
			records:   4,
			wantFlush: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockStore{}
			c := NewCollector(ms, tt.batchSize, time.Hour)

			for i := 0; i < tt.records; i++ {
				c.Record(sampleEvent(EventQuery))
			}

			time.Sleep(50 * time.Millisecond)

			if got := ms.totalInserted(); got != tt.wantFlush {
				t.Errorf("expected %d flushed events, got %d", tt.wantFlush, got)
			}
		})
	}
}

func TestCollector_StopDoesFinalFlush(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Start(ctx)

	c.Record(sampleEvent(EventQuery))
	c.Record(sampleEvent(EventFeedback))
	c.Record(sampleEvent(EventWidgetLoad))

	c.Stop()
	time.Sleep(100 * time.Millisecond)

	if got := ms.totalInserted(); got != 3 {
		t.Fatalf("expected 3 events after Stop, got %d", got)
	}
}

func TestCollector_TimerFlush(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Start(ctx)

	c.Record(sampleEvent(EventQuery))

	time.Sleep(200 * time.Millisecond)

	if got := ms.totalInserted(); got != 1 {
		t.Fatalf("expected 1 event after timer flush, got %d", got)
	}

	c.Stop()
}

func TestCollector_ConcurrentRecords(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(sampleEvent(EventQuery))
		}()
	}
	wg.Wait()

	c.Stop()
	time.Sleep(100 * time.Millisecond)

	if got := ms.totalInserted(); got != 50 {
		t.Fatalf("expected 50 events, got %d", got)
	}
}

func TestCollector_DefaultsTimestamp(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 1, time.Hour)

	c.Record(Event{AgentKey: "agent-1", Kind: EventQuery})
	time.Sleep(50 * time.Millisecond)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.batches) != 1 || len(ms.batches[0]) != 1 {
		t.Fatal("expected one flushed event")
	}
	if ms.batches[0][0].Timestamp.IsZero() {
		t.Error("expected timestamp to be defaulted")
	}
}
