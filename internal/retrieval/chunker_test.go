package retrieval

import (
	"strings"
	"testing"
)

func TestSentenceChunker_SplitsIntoWindows(t *testing.T) {
	doc := Document{
		ID:      "doc1",
		Source:  "guide.pdf",
		Content: "One. Two. Three. Four. Five. Six. Seven.",
	}

	chunks := NewSentenceChunker(3, 0).Chunk(doc)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	if chunks[0].Text != "One. Two. Three." {
		t.Errorf("unexpected first chunk: %q", chunks[0].Text)
	}
	if chunks[2].Text != "Seven." {
		t.Errorf("unexpected last chunk: %q", chunks[2].Text)
	}
	for i, ch := range chunks {
		if ch.DocumentID != "doc1" {
			t.Errorf("chunk %d: expected document ID doc1, got %q", i, ch.DocumentID)
		}
		if ch.Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, ch.Index)
		}
		if ch.Source != "guide.pdf" {
			t.Errorf("chunk %d: expected source guide.pdf, got %q", i, ch.Source)
		}
	}
}

func TestSentenceChunker_Overlap(t *testing.T) {
	doc := Document{ID: "doc1", Content: "One. Two. Three. Four. Five."}

	chunks := NewSentenceChunker(3, 1).Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	// The overlapping sentence appears at the end of one chunk and the start
	// of the next.
	if !strings.HasSuffix(chunks[0].Text, "Three.") {
		t.Errorf("expected first chunk to end with overlap sentence, got %q", chunks[0].Text)
	}
	if !strings.HasPrefix(chunks[1].Text, "Three.") {
		t.Errorf("expected second chunk to start with overlap sentence, got %q", chunks[1].Text)
	}
}

func TestSentenceChunker_NoTerminalPunctuation(t *testing.T) {
	doc := Document{ID: "doc1", Content: "just a fragment without punctuation"}

	chunks := NewSentenceChunker(5, 0).Chunk(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "just a fragment without punctuation" {
		t.Errorf("unexpected chunk text: %q", chunks[0].Text)
	}
}

func TestSentenceChunker_EmptyDocument(t *testing.T) {
	chunks := NewSentenceChunker(5, 0).Chunk(Document{ID: "doc1", Content: "   "})
	if chunks != nil {
		t.Errorf("expected no chunks for blank document, got %d", len(chunks))
	}
}
