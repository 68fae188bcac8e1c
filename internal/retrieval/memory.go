package retrieval

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-memory vector store using brute-force cosine
// similarity. Each agent owns an isolated index, so one workspace's content
// never leaks into another's search results.
type MemoryStore struct {
	mu      sync.RWMutex
	indexes map[string]*agentIndex
}

type agentIndex struct {
	chunks  []Chunk
	vectors [][]float64
}

// NewMemoryStore creates an empty per-agent vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indexes: make(map[string]*agentIndex)}
}

// Upsert appends chunks and their vectors to the agent's index.
func (s *MemoryStore) Upsert(agentKey string, chunks []Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[agentKey]
	if !ok {
		idx = &agentIndex{}
		s.indexes[agentKey] = idx
	}
	idx.chunks = append(idx.chunks, chunks...)
	idx.vectors = append(idx.vectors, vectors...)
	return nil
}

// Search returns the topK most similar chunks in the agent's index, best
// first. An unknown agent yields no results, not an error.
func (s *MemoryStore) Search(agentKey string, vector []float64, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexes[agentKey]
	if !ok {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(idx.chunks))
	for i := range idx.vectors {
		results = append(results, SearchResult{
			Chunk: idx.chunks[i],
			Score: cosine(idx.vectors[i], vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Clear drops the agent's index entirely.
func (s *MemoryStore) Clear(agentKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, agentKey)
	return nil
}

// DocumentCount returns how many chunks are indexed for the agent.
func (s *MemoryStore) DocumentCount(agentKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indexes[agentKey]; ok {
		return len(idx.chunks)
	}
	return 0
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
