package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestFileLoader(t *testing.T) {
	path := writeTempFile(t, "manual.txt", "Install the widget. Restart the server.")

	cfg, err := ParseConfig(KindPDF, []byte(`{"file_paths": ["`+path+`"]}`))
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	loader, err := NewLoader(cfg)
	if err != nil {
		t.Fatalf("NewLoader() error: %v", err)
	}

	docs, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Content != "Install the widget. Restart the server." {
		t.Errorf("unexpected content: %q", docs[0].Content)
	}
	if docs[0].Source != "manual.txt" {
		t.Errorf("expected source manual.txt, got %q", docs[0].Source)
	}
	if docs[0].SourceKind != "pdf" {
		t.Errorf("expected source kind pdf, got %q", docs[0].SourceKind)
	}
}

func TestFileLoader_MissingFile(t *testing.T) {
	cfg, err := ParseConfig(KindWord, []byte(`{"file_paths": ["/does/not/exist.txt"]}`))
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	loader, err := NewLoader(cfg)
	if err != nil {
		t.Fatalf("NewLoader() error: %v", err)
	}
	if _, err := loader.Load(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCSVLoader(t *testing.T) {
	path := writeTempFile(t, "products.csv",
		"name,price,stock\nWidget,9.99,12\nGadget,24.50,\n")

	cfg, err := ParseConfig(KindCSV, []byte(`{"file_paths": ["`+path+`"]}`))
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	loader, err := NewLoader(cfg)
	if err != nil {
		t.Fatalf("NewLoader() error: %v", err)
	}

	docs, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}

	if !strings.Contains(docs[0].Content, "name: Widget") {
		t.Errorf("expected header context in content, got %q", docs[0].Content)
	}
	if !strings.Contains(docs[0].Content, "price: 9.99") {
		t.Errorf("expected price line, got %q", docs[0].Content)
	}
	// Empty cells are dropped, not rendered as "stock:".
	if strings.Contains(docs[1].Content, "stock") {
		t.Errorf("expected empty cell omitted, got %q", docs[1].Content)
	}
	if docs[0].Metadata["row"] != "1" {
		t.Errorf("expected row metadata 1, got %q", docs[0].Metadata["row"])
	}
}

func TestCSVLoader_HeaderOnly(t *testing.T) {
	path := writeTempFile(t, "empty.csv", "name,price\n")

	cfg, err := ParseConfig(KindCSV, []byte(`{"file_paths": ["`+path+`"]}`))
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	loader, err := NewLoader(cfg)
	if err != nil {
		t.Fatalf("NewLoader() error: %v", err)
	}

	docs, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents from header-only file, got %d", len(docs))
	}
}
