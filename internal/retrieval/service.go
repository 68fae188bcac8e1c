package retrieval

import (
	"context"
	"fmt"
	"log/slog"
)

// Service ties chunking, embedding, indexing and answer generation together.
// It is invoked at most once per admitted embed request.
type Service struct {
	chunker  Chunker
	embedder Embedder
	store    VectorStore
	answerer Answerer
	logger   *slog.Logger
}

// NewService creates a retrieval service from its collaborators.
func NewService(chunker Chunker, embedder Embedder, store VectorStore, answerer Answerer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		answerer: answerer,
		logger:   logger,
	}
}

// Ingest chunks, embeds and indexes the documents under the agent's key,
// replacing any previous index. It returns the number of chunks indexed.
func (s *Service) Ingest(ctx context.Context, agentKey string, docs []Document) (int, error) {
	var chunks []Chunk
	for _, doc := range docs {
		chunks = append(chunks, s.chunker.Chunk(doc)...)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no indexable content in %d documents", len(docs))
	}

	vectors := make([][]float64, len(chunks))
	for i, ch := range chunks {
		vec, err := s.embedder.Embed(ctx, ch.Text)
		if err != nil {
			return 0, fmt.Errorf("embedding chunk %s: %w", ch.ChunkID, err)
		}
		vectors[i] = vec
	}

	if err := s.store.Clear(agentKey); err != nil {
		return 0, fmt.Errorf("clearing index: %w", err)
	}
	if err := s.store.Upsert(agentKey, chunks, vectors); err != nil {
		return 0, fmt.Errorf("indexing chunks: %w", err)
	}

	s.logger.Info("agent content indexed",
		"agent_key", agentKey,
		"documents", len(docs),
		"chunks", len(chunks),
	)
	return len(chunks), nil
}

// Query embeds the question, searches the agent's index and generates an
// answer grounded in the best-matching chunks.
func (s *Service) Query(ctx context.Context, agentKey, systemPrompt, question string, topK int) (*QueryResult, error) {
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	results, err := s.store.Search(agentKey, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	contextChunks := make([]string, 0, len(results))
	snippets := make([]Snippet, 0, len(results))
	for _, r := range results {
		contextChunks = append(contextChunks, r.Chunk.Text)
		snippets = append(snippets, Snippet{
			Source: r.Chunk.Source,
			Text:   r.Chunk.Text,
			Score:  r.Score,
		})
	}

	answer, err := s.answerer.Answer(ctx, systemPrompt, question, contextChunks)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	return &QueryResult{Answer: answer, Sources: snippets}, nil
}
