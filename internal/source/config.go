package source

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a supported data source type.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindCSV   Kind = "csv"
	KindWord  Kind = "word"
	KindSQL   Kind = "sql"
	KindNoSQL Kind = "nosql"
)

// Valid reports whether k names a supported source kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPDF, KindCSV, KindWord, KindSQL, KindNoSQL:
		return true
	}
	return false
}

// DefaultSampleLimit caps how many rows or keys a database-backed source
// extracts per table or scan.
const DefaultSampleLimit = 1000

// Config is the closed set of source configurations. Each kind carries its
// own strongly typed fields; ParseConfig rejects payloads missing required
// fields instead of letting them fail deep inside a loader.
type Config interface {
	Kind() Kind
	validate() error
}

// FileConfig configures file-backed sources (pdf, csv, word). Paths point at
// the uploaded files; pdf and word paths reference the extracted-text copies
// produced at upload time.
type FileConfig struct {
	kind      Kind
	FilePaths []string `json:"file_paths"`
}

func (c *FileConfig) Kind() Kind { return c.kind }

func (c *FileConfig) validate() error {
	if len(c.FilePaths) == 0 {
		return fmt.Errorf("%s source requires file_paths", c.kind)
	}
	return nil
}

// SQLConfig configures extraction from a Postgres database.
type SQLConfig struct {
	ConnectionString string   `json:"connection_string"`
	Tables           []string `json:"tables,omitempty"`
	SampleLimit      int      `json:"sample_limit,omitempty"`
}

func (c *SQLConfig) Kind() Kind { return KindSQL }

func (c *SQLConfig) validate() error {
	if c.ConnectionString == "" {
		return errors.New("sql source requires connection_string")
	}
	return nil
}

// NoSQLConfig configures extraction from a Redis keyspace.
type NoSQLConfig struct {
	Addr        string `json:"addr"`
	Password    string `json:"password,omitempty"`
	DB          int    `json:"db,omitempty"`
	KeyPattern  string `json:"key_pattern,omitempty"`
	SampleLimit int    `json:"sample_limit,omitempty"`
}

func (c *NoSQLConfig) Kind() Kind { return KindNoSQL }

func (c *NoSQLConfig) validate() error {
	if c.Addr == "" {
		return errors.New("nosql source requires addr")
	}
	return nil
}

// ParseConfig decodes a raw JSON source configuration for the given kind,
// applying defaults and rejecting payloads with missing required fields.
func ParseConfig(kind Kind, raw json.RawMessage) (Config, error) {
	var cfg Config

	switch kind {
	case KindPDF, KindCSV, KindWord:
		fc := &FileConfig{kind: kind}
		if err := json.Unmarshal(raw, fc); err != nil {
			return nil, fmt.Errorf("parsing %s source config: %w", kind, err)
		}
		cfg = fc
	case KindSQL:
		sc := &SQLConfig{}
		if err := json.Unmarshal(raw, sc); err != nil {
			return nil, fmt.Errorf("parsing sql source config: %w", err)
		}
		if sc.SampleLimit <= 0 {
			sc.SampleLimit = DefaultSampleLimit
		}
		cfg = sc
	case KindNoSQL:
		nc := &NoSQLConfig{}
		if err := json.Unmarshal(raw, nc); err != nil {
			return nil, fmt.Errorf("parsing nosql source config: %w", err)
		}
		if nc.KeyPattern == "" {
			nc.KeyPattern = "*"
		}
		if nc.SampleLimit <= 0 {
			nc.SampleLimit = DefaultSampleLimit
		}
		cfg = nc
	default:
		return nil, fmt.Errorf("unsupported source kind %q", kind)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
