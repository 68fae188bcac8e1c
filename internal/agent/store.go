package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no agent matches the given key.
var ErrNotFound = errors.New("agent not found")

const agentColumns = `key, workspace_id, name, description, source_kind, system_prompt,
	 top_k, legacy_embed_token, document_count, created_at, updated_at`

// Store provides database operations for agents.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new agent store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanAgent(row pgx.Row) (*Agent, error) {
	a := &Agent{}
	err := row.Scan(&a.Key, &a.WorkspaceID, &a.Name, &a.Description, &a.SourceKind,
		&a.SystemPrompt, &a.TopK, &a.LegacyEmbedToken, &a.DocumentCount,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// Create registers a new agent and returns the created record.
func (s *Store) Create(ctx context.Context, in CreateAgentInput) (*Agent, error) {
	topK := in.TopK
	if topK <= 0 {
		topK = 3
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO agents (key, workspace_id, name, description, source_kind, system_prompt, top_k)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+agentColumns,
		uuid.NewString(), in.WorkspaceID, in.Name, in.Description, in.SourceKind, in.SystemPrompt, topK,
	)

	a, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	return a, nil
}

// GetByKey retrieves an agent by its key.
func (s *Store) GetByKey(ctx context.Context, key string) (*Agent, error) {
	a, err := scanAgent(s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE key = $1`, key,
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting agent by key: %w", err)
	}
	return a, nil
}

// AgentKeyByEmbedToken resolves the legacy widget token to its agent key. It
// backs the degraded admission path.
func (s *Store) AgentKeyByEmbedToken(ctx context.Context, embedToken string) (string, error) {
	var key string
	err := s.pool.QueryRow(ctx,
		`SELECT key FROM agents WHERE legacy_embed_token = $1`, embedToken,
	).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolving legacy embed token: %w", err)
	}
	return key, nil
}

// SetLegacyEmbedToken stores (or clears, with nil) the legacy widget token.
func (s *Store) SetLegacyEmbedToken(ctx context.Context, key string, embedToken *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET legacy_embed_token = $2, updated_at = now() WHERE key = $1`,
		key, embedToken,
	)
	if err != nil {
		return fmt.Errorf("setting legacy embed token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByWorkspace returns all agents owned by a workspace, newest first.
func (s *Store) ListByWorkspace(ctx context.Context, workspaceID string) ([]*Agent, error) {
	return s.listQuery(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE workspace_id = $1 ORDER BY created_at DESC`,
		workspaceID)
}

// ListAll returns every agent across all workspaces, newest first. It backs
// the admin listing only.
func (s *Store) ListAll(ctx context.Context) ([]*Agent, error) {
	return s.listQuery(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC`)
}

func (s *Store) listQuery(ctx context.Context, query string, args ...any) ([]*Agent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a := &Agent{}
		if err := rows.Scan(&a.Key, &a.WorkspaceID, &a.Name, &a.Description, &a.SourceKind,
			&a.SystemPrompt, &a.TopK, &a.LegacyEmbedToken, &a.DocumentCount,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}

	return agents, nil
}

// Update performs a partial update on the agent with the given key.
func (s *Store) Update(ctx context.Context, key string, in UpdateAgentInput) (*Agent, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if in.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *in.Name)
		argIdx++
	}
	if in.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *in.Description)
		argIdx++
	}
	if in.SystemPrompt != nil {
		setClauses = append(setClauses, fmt.Sprintf("system_prompt = $%d", argIdx))
		args = append(args, *in.SystemPrompt)
		argIdx++
	}
	if in.TopK != nil {
		setClauses = append(setClauses, fmt.Sprintf("top_k = $%d", argIdx))
		args = append(args, *in.TopK)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetByKey(ctx, key)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, key)
	query := fmt.Sprintf(
		`UPDATE agents SET %s WHERE key = $%d RETURNING `+agentColumns,
		strings.Join(setClauses, ", "), argIdx,
	)

	a, err := scanAgent(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating agent: %w", err)
	}
	return a, nil
}

// SetDocumentCount records how many documents the last ingest produced.
func (s *Store) SetDocumentCount(ctx context.Context, key string, count int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agents SET document_count = $2, updated_at = now() WHERE key = $1`,
		key, count,
	)
	if err != nil {
		return fmt.Errorf("setting document count: %w", err)
	}
	return nil
}

// Delete removes an agent by key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	return nil
}
