package source

import (
	"encoding/json"
	"testing"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		raw     string
		wantErr bool
	}{
		{
			name: "pdf with paths",
			kind: KindPDF,
			raw:  `{"file_paths": ["a.txt", "b.txt"]}`,
		},
		{
			name:    "pdf missing paths",
			kind:    KindPDF,
			raw:     `{}`,
			wantErr: true,
		},
		{
			name:    "csv empty paths",
			kind:    KindCSV,
			raw:     `{"file_paths": []}`,
			wantErr: true,
		},
		{
			name: "word with paths",
			kind: KindWord,
			raw:  `{"file_paths": ["doc.txt"]}`,
		},
		{
			name: "sql with connection string",
			kind: KindSQL,
			raw:  `{"connection_string": "postgres://localhost/db", "tables": ["orders"]}`,
		},
		{
			name:    "sql missing connection string",
			kind:    KindSQL,
			raw:     `{"tables": ["orders"]}`,
			wantErr: true,
		},
		{
			name: "nosql with addr",
			kind: KindNoSQL,
			raw:  `{"addr": "localhost:6379"}`,
		},
		{
			name:    "nosql missing addr",
			kind:    KindNoSQL,
			raw:     `{"db": 1}`,
			wantErr: true,
		},
		{
			name:    "unknown kind",
			kind:    Kind("graphql"),
			raw:     `{}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			kind:    KindSQL,
			raw:     `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig(tt.kind, json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig() error: %v", err)
			}
			if cfg.Kind() != tt.kind {
				t.Errorf("expected kind %q, got %q", tt.kind, cfg.Kind())
			}
		})
	}
}

func TestParseConfig_SQLDefaults(t *testing.T) {
	cfg, err := ParseConfig(KindSQL, json.RawMessage(`{"connection_string": "postgres://localhost/db"}`))
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	sc := cfg.(*SQLConfig)
	if sc.SampleLimit != DefaultSampleLimit {
		t.Errorf("expected default sample limit %d, got %d", DefaultSampleLimit, sc.SampleLimit)
	}
}

func TestParseConfig_NoSQLDefaults(t *testing.T) {
	cfg, err := ParseConfig(KindNoSQL, json.RawMessage(`{"addr": "localhost:6379"}`))
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	nc := cfg.(*NoSQLConfig)
	if nc.KeyPattern != "*" {
		t.Errorf("expected default key pattern *, got %q", nc.KeyPattern)
	}
	if nc.SampleLimit != DefaultSampleLimit {
		t.Errorf("expected default sample limit %d, got %d", DefaultSampleLimit, nc.SampleLimit)
	}
}
