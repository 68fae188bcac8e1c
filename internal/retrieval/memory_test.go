package retrieval

import (
	"testing"
)

func TestMemoryStore_SearchRanksBySimilarity(t *testing.T) {
	store := NewMemoryStore()

	chunks := []Chunk{
		{ChunkID: "a", Text: "alpha"},
		{ChunkID: "b", Text: "beta"},
		{ChunkID: "c", Text: "gamma"},
	}
	vectors := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}
	if err := store.Upsert("agent-1", chunks, vectors); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	results, err := store.Search("agent-1", []float64{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ChunkID != "a" {
		t.Errorf("expected best match 'a', got %q", results[0].Chunk.ChunkID)
	}
	if results[1].Chunk.ChunkID != "c" {
		t.Errorf("expected second match 'c', got %q", results[1].Chunk.ChunkID)
	}
	if results[0].Score < results[1].Score {
		t.Error("expected results ordered by descending score")
	}
}

func TestMemoryStore_AgentIsolation(t *testing.T) {
	store := NewMemoryStore()

	if err := store.Upsert("agent-1", []Chunk{{ChunkID: "a"}}, [][]float64{{1, 0}}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	results, err := store.Search("agent-2", []float64{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for other agent, got %d", len(results))
	}
}

func TestMemoryStore_LengthMismatch(t *testing.T) {
	store := NewMemoryStore()
	err := store.Upsert("agent-1", []Chunk{{ChunkID: "a"}}, nil)
	if err == nil {
		t.Error("expected error for chunk/vector length mismatch")
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Upsert("agent-1", []Chunk{{ChunkID: "a"}}, [][]float64{{1}}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if err := store.Clear("agent-1"); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if got := store.DocumentCount("agent-1"); got != 0 {
		t.Errorf("expected empty index after clear, got %d chunks", got)
	}
}
