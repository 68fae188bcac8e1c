package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/embedgate/embedgate/internal/retrieval"
)

// SQLLoader extracts documents from a Postgres database. Each row becomes a
// document with column names as context; each table also contributes one
// schema document.
type SQLLoader struct {
	cfg *SQLConfig
}

func (l *SQLLoader) Load(ctx context.Context) ([]retrieval.Document, error) {
	conn, err := pgx.Connect(ctx, l.cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("connecting to source database: %w", err)
	}
	defer conn.Close(ctx)

	tables := l.cfg.Tables
	if len(tables) == 0 {
		tables, err = listTables(ctx, conn)
		if err != nil {
			return nil, err
		}
	}

	var docs []retrieval.Document
	for _, table := range tables {
		schemaDoc, err := l.extractSchema(ctx, conn, table)
		if err != nil {
			return nil, err
		}
		if schemaDoc != nil {
			docs = append(docs, *schemaDoc)
		}

		rowDocs, err := l.extractRows(ctx, conn, table)
		if err != nil {
			return nil, err
		}
		docs = append(docs, rowDocs...)
	}
	return docs, nil
}

func listTables(ctx context.Context, conn *pgx.Conn) ([]string, error) {
	rows, err := conn.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (l *SQLLoader) extractSchema(ctx context.Context, conn *pgx.Conn, table string) (*retrieval.Document, error) {
	rows, err := conn.Query(ctx,
		`SELECT column_name, data_type, is_nullable FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", table, err)
	}
	defer rows.Close()

	parts := []string{"Table: " + table, "Columns:"}
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}
		line := fmt.Sprintf("  - %s: %s", name, dataType)
		if nullable == "NO" {
			line += " (NOT NULL)"
		}
		parts = append(parts, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(parts) == 2 {
		return nil, nil
	}

	return &retrieval.Document{
		ID:         uuid.NewString(),
		Source:     "schema_" + table,
		SourceKind: string(KindSQL),
		Content:    strings.Join(parts, "\n"),
		Metadata:   map[string]string{"table": table, "is_schema": "true"},
	}, nil
}

func (l *SQLLoader) extractRows(ctx context.Context, conn *pgx.Conn, table string) ([]retrieval.Document, error) {
	// Table names come from information_schema or the validated config, not
	// raw user input, and identifiers cannot be bound as parameters.
	query := fmt.Sprintf(`SELECT * FROM %s LIMIT %d`,
		pgx.Identifier{table}.Sanitize(), l.cfg.SampleLimit)

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	var docs []retrieval.Document
	rowNum := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row of %s: %w", table, err)
		}
		rowNum++

		parts := []string{"[" + table + "]"}
		for i, value := range values {
			if value == nil {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %v", columns[i], value))
		}
		if len(parts) == 1 {
			continue
		}
		docs = append(docs, retrieval.Document{
			ID:         uuid.NewString(),
			Source:     table,
			SourceKind: string(KindSQL),
			Content:    strings.Join(parts, "\n"),
			Metadata:   map[string]string{"table": table, "row": fmt.Sprintf("%d", rowNum)},
		})
	}
	return docs, rows.Err()
}
