package retrieval

import (
	"context"
	"strings"
	"testing"
)

// fakeEmbedder maps known words onto axis-aligned vectors so similarity is
// predictable without a remote API.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, 3)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "shipping") {
		vec[0] = 1
	}
	if strings.Contains(lower, "returns") {
		vec[1] = 1
	}
	if strings.Contains(lower, "warranty") {
		vec[2] = 1
	}
	return vec, nil
}

type fakeAnswerer struct {
	gotSystemPrompt string
	gotChunks       []string
}

func (f *fakeAnswerer) Answer(_ context.Context, systemPrompt, question string, contextChunks []string) (string, error) {
	f.gotSystemPrompt = systemPrompt
	f.gotChunks = contextChunks
	return "generated answer", nil
}

func testDocs() []Document {
	return []Document{
		{ID: "d1", Source: "faq.pdf", Content: "Shipping takes three days. Shipping is free over fifty dollars."},
		{ID: "d2", Source: "faq.pdf", Content: "Returns are accepted within thirty days. Returns require a receipt."},
	}
}

func TestServiceIngestAndQuery(t *testing.T) {
	store := NewMemoryStore()
	answerer := &fakeAnswerer{}
	svc := NewService(NewSentenceChunker(1, 0), fakeEmbedder{}, store, answerer, nil)

	n, err := svc.Ingest(context.Background(), "agent-1", testDocs())
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 chunks indexed, got %d", n)
	}

	res, err := svc.Query(context.Background(), "agent-1", "be terse", "How long does shipping take?", 2)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	if res.Answer != "generated answer" {
		t.Errorf("unexpected answer: %q", res.Answer)
	}
	if len(res.Sources) != 2 {
		t.Fatalf("expected 2 source snippets, got %d", len(res.Sources))
	}
	if !strings.Contains(res.Sources[0].Text, "Shipping") {
		t.Errorf("expected best snippet about shipping, got %q", res.Sources[0].Text)
	}
	if answerer.gotSystemPrompt != "be terse" {
		t.Errorf("expected system prompt forwarded, got %q", answerer.gotSystemPrompt)
	}
	if len(answerer.gotChunks) != 2 {
		t.Errorf("expected 2 context chunks passed to answerer, got %d", len(answerer.gotChunks))
	}
}

func TestServiceIngestReplacesIndex(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(NewSentenceChunker(1, 0), fakeEmbedder{}, store, &fakeAnswerer{}, nil)

	if _, err := svc.Ingest(context.Background(), "agent-1", testDocs()); err != nil {
		t.Fatalf("first Ingest() error: %v", err)
	}
	if _, err := svc.Ingest(context.Background(), "agent-1", []Document{
		{ID: "d3", Source: "new.pdf", Content: "Warranty lasts one year."},
	}); err != nil {
		t.Fatalf("second Ingest() error: %v", err)
	}

	if got := store.DocumentCount("agent-1"); got != 1 {
		t.Errorf("expected re-ingest to replace index, got %d chunks", got)
	}
}

func TestServiceIngestEmptyContent(t *testing.T) {
	svc := NewService(NewSentenceChunker(1, 0), fakeEmbedder{}, NewMemoryStore(), &fakeAnswerer{}, nil)
	if _, err := svc.Ingest(context.Background(), "agent-1", []Document{{ID: "d1", Content: "  "}}); err == nil {
		t.Error("expected error when no indexable content")
	}
}
