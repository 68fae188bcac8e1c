package retrieval

import "context"

// Document is a unit of source content ready for chunking and indexing.
type Document struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	SourceKind string            `json:"source_kind"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Chunk is a retrievable slice of a document.
type Chunk struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Source     string `json:"source"`
	Text       string `json:"text"`
	Index      int    `json:"index"`
}

// SearchResult pairs a matching chunk with its relevance score.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Snippet is a source excerpt returned alongside a generated answer.
type Snippet struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// QueryResult is the outcome of one retrieval-augmented query.
type QueryResult struct {
	Answer  string    `json:"answer"`
	Sources []Snippet `json:"sources"`
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Chunker splits documents into chunks suitable for indexing.
type Chunker interface {
	Chunk(doc Document) []Chunk
}

// VectorStore indexes chunk vectors per agent and supports similarity search.
type VectorStore interface {
	Upsert(agentKey string, chunks []Chunk, vectors [][]float64) error
	Search(agentKey string, vector []float64, topK int) ([]SearchResult, error)
	Clear(agentKey string) error
}

// Answerer generates an answer to a question given retrieved context.
type Answerer interface {
	Answer(ctx context.Context, systemPrompt, question string, contextChunks []string) (string, error)
}
