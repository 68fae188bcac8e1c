package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/embedgate/embedgate/internal/retrieval"
)

// Loader extracts retrieval documents from a configured data source.
type Loader interface {
	Load(ctx context.Context) ([]retrieval.Document, error)
}

// NewLoader builds the loader matching the config's kind. SQL and NoSQL
// loaders connect lazily, on Load.
func NewLoader(cfg Config) (Loader, error) {
	switch c := cfg.(type) {
	case *FileConfig:
		if c.kind == KindCSV {
			return &CSVLoader{cfg: c}, nil
		}
		return &FileLoader{cfg: c}, nil
	case *SQLConfig:
		return &SQLLoader{cfg: c}, nil
	case *NoSQLConfig:
		return &NoSQLLoader{cfg: c}, nil
	default:
		return nil, fmt.Errorf("no loader for source kind %q", cfg.Kind())
	}
}

// FileLoader reads whole files as text documents. It serves the pdf and word
// kinds, whose content has been extracted to text at upload time.
type FileLoader struct {
	cfg *FileConfig
}

func (l *FileLoader) Load(_ context.Context) ([]retrieval.Document, error) {
	var docs []retrieval.Document
	for _, path := range l.cfg.FilePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		name := filepath.Base(path)
		docs = append(docs, retrieval.Document{
			ID:         uuid.NewString(),
			Source:     name,
			SourceKind: string(l.cfg.kind),
			Content:    string(data),
			Metadata:   map[string]string{"file": name},
		})
	}
	return docs, nil
}

// CSVLoader turns each CSV row into a document with column headers as
// context, so "price: 42" stays searchable next to its column name.
type CSVLoader struct {
	cfg *FileConfig
}

func (l *CSVLoader) Load(_ context.Context) ([]retrieval.Document, error) {
	var docs []retrieval.Document
	for _, path := range l.cfg.FilePaths {
		fileDocs, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

func (l *CSVLoader) loadFile(path string) ([]retrieval.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	headers := records[0]
	name := filepath.Base(path)

	var docs []retrieval.Document
	for rowNum, row := range records[1:] {
		var parts []string
		for i, value := range row {
			if i >= len(headers) {
				break
			}
			value = strings.TrimSpace(value)
			if value != "" {
				parts = append(parts, headers[i]+": "+value)
			}
		}
		if len(parts) == 0 {
			continue
		}
		docs = append(docs, retrieval.Document{
			ID:         uuid.NewString(),
			Source:     name,
			SourceKind: string(KindCSV),
			Content:    strings.Join(parts, "\n"),
			Metadata: map[string]string{
				"file": name,
				"row":  strconv.Itoa(rowNum + 1),
			},
		})
	}
	return docs, nil
}
