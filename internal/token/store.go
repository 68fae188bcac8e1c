package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Defaults applied when a create request leaves the limits unset.
const (
	DefaultRateLimit    = 20
	DefaultMonthlyQuota = 10000
)

var (
	// ErrNotFound is returned when no token matches the given public token.
	ErrNotFound = errors.New("embed token not found")
	// ErrRevoked is returned when an operation would move a revoked token
	// back into service. Revocation is terminal.
	ErrRevoked = errors.New("embed token is revoked")
)

const tokenColumns = `public_token, agent_key, workspace_id, allowed_domains, rate_limit,
	 monthly_quota, monthly_usage, quota_reset_at, status, expires_at, created_at, last_used_at`

// Store provides database operations for embed tokens.
type Store struct {
	pool *pgxpool.Pool

	defaultRateLimit    int
	defaultMonthlyQuota int
}

// NewStore creates a new token store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:                pool,
		defaultRateLimit:    DefaultRateLimit,
		defaultMonthlyQuota: DefaultMonthlyQuota,
	}
}

// SetDefaults overrides the limits applied when a create request leaves them
// unset. Non-positive values keep the package defaults.
func (s *Store) SetDefaults(rateLimit, monthlyQuota int) {
	if rateLimit > 0 {
		s.defaultRateLimit = rateLimit
	}
	if monthlyQuota > 0 {
		s.defaultMonthlyQuota = monthlyQuota
	}
}

func scanToken(row pgx.Row) (*EmbedToken, error) {
	t := &EmbedToken{}
	err := row.Scan(&t.PublicToken, &t.AgentKey, &t.WorkspaceID, &t.AllowedDomains,
		&t.RateLimit, &t.MonthlyQuota, &t.MonthlyUsage, &t.QuotaResetAt,
		&t.Status, &t.ExpiresAt, &t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if t.AllowedDomains == nil {
		t.AllowedDomains = []string{}
	}
	return t, nil
}

// NewPublicToken generates an opaque 24-character token string.
func NewPublicToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Create issues a new embed token for the given agent. Unset limits fall back
// to the package defaults; an empty domain list means unrestricted.
func (s *Store) Create(ctx context.Context, in CreateTokenInput) (*EmbedToken, error) {
	now := time.Now()

	domains := in.AllowedDomains
	if len(domains) == 0 {
		domains = []string{"*"}
	}
	rateLimit := in.RateLimit
	if rateLimit <= 0 {
		rateLimit = s.defaultRateLimit
	}
	quota := in.MonthlyQuota
	if quota <= 0 {
		quota = s.defaultMonthlyQuota
	}

	var expiresAt *time.Time
	if in.ExpiresInDays > 0 {
		e := now.AddDate(0, 0, in.ExpiresInDays)
		expiresAt = &e
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO embed_tokens (public_token, agent_key, workspace_id, allowed_domains,
		   rate_limit, monthly_quota, monthly_usage, quota_reset_at, status, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10)
		 RETURNING `+tokenColumns,
		NewPublicToken(), in.AgentKey, in.WorkspaceID, domains,
		rateLimit, quota, NextQuotaReset(now), StatusActive, expiresAt, now,
	)

	t, err := scanToken(row)
	if err != nil {
		return nil, fmt.Errorf("creating embed token: %w", err)
	}
	return t, nil
}

// GetByPublicToken retrieves a token by its public token string.
func (s *Store) GetByPublicToken(ctx context.Context, publicToken string) (*EmbedToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM embed_tokens WHERE public_token = $1`,
		publicToken,
	)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting embed token: %w", err)
	}
	return t, nil
}

// Update performs a partial update. A status change to anything other than
// revoked is rejected when the token is already revoked.
func (s *Store) Update(ctx context.Context, publicToken string, in UpdateTokenInput) (*EmbedToken, error) {
	if in.Status != nil && *in.Status != StatusRevoked {
		current, err := s.GetByPublicToken(ctx, publicToken)
		if err != nil {
			return nil, err
		}
		if current.Status == StatusRevoked {
			return nil, ErrRevoked
		}
	}

	var setClauses []string
	var args []any
	argIdx := 1

	if in.AllowedDomains != nil {
		setClauses = append(setClauses, fmt.Sprintf("allowed_domains = $%d", argIdx))
		args = append(args, *in.AllowedDomains)
		argIdx++
	}
	if in.RateLimit != nil {
		setClauses = append(setClauses, fmt.Sprintf("rate_limit = $%d", argIdx))
		args = append(args, *in.RateLimit)
		argIdx++
	}
	if in.MonthlyQuota != nil {
		setClauses = append(setClauses, fmt.Sprintf("monthly_quota = $%d", argIdx))
		args = append(args, *in.MonthlyQuota)
		argIdx++
	}
	if in.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *in.Status)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetByPublicToken(ctx, publicToken)
	}

	args = append(args, publicToken)
	query := fmt.Sprintf(
		`UPDATE embed_tokens SET %s WHERE public_token = $%d RETURNING `+tokenColumns,
		strings.Join(setClauses, ", "), argIdx,
	)

	t, err := scanToken(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating embed token: %w", err)
	}
	return t, nil
}

// Suspend marks a token suspended. Suspension is reversible via Activate.
func (s *Store) Suspend(ctx context.Context, publicToken string) (*EmbedToken, error) {
	status := StatusSuspended
	return s.Update(ctx, publicToken, UpdateTokenInput{Status: &status})
}

// Revoke permanently disables a token.
func (s *Store) Revoke(ctx context.Context, publicToken string) (*EmbedToken, error) {
	status := StatusRevoked
	return s.Update(ctx, publicToken, UpdateTokenInput{Status: &status})
}

// Activate re-enables a suspended token. Revoked tokens are rejected with
// ErrRevoked.
func (s *Store) Activate(ctx context.Context, publicToken string) (*EmbedToken, error) {
	status := StatusActive
	return s.Update(ctx, publicToken, UpdateTokenInput{Status: &status})
}

// Delete removes a token outright.
func (s *Store) Delete(ctx context.Context, publicToken string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM embed_tokens WHERE public_token = $1`, publicToken)
	if err != nil {
		return fmt.Errorf("deleting embed token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByAgent returns all tokens issued for an agent, newest first.
func (s *Store) ListByAgent(ctx context.Context, agentKey string) ([]*EmbedToken, error) {
	return s.list(ctx, `agent_key`, agentKey)
}

// ListByWorkspace returns all tokens owned by a workspace, newest first.
func (s *Store) ListByWorkspace(ctx context.Context, workspaceID string) ([]*EmbedToken, error) {
	return s.list(ctx, `workspace_id`, workspaceID)
}

// ListAll returns every token across all workspaces, newest first. It backs
// the admin listing only.
func (s *Store) ListAll(ctx context.Context) ([]*EmbedToken, error) {
	return s.listQuery(ctx,
		`SELECT `+tokenColumns+` FROM embed_tokens ORDER BY created_at DESC`)
}

func (s *Store) list(ctx context.Context, column, value string) ([]*EmbedToken, error) {
	return s.listQuery(ctx,
		`SELECT `+tokenColumns+` FROM embed_tokens WHERE `+column+` = $1 ORDER BY created_at DESC`,
		value)
}

func (s *Store) listQuery(ctx context.Context, query string, args ...any) ([]*EmbedToken, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing embed tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*EmbedToken
	for rows.Next() {
		t := &EmbedToken{}
		if err := rows.Scan(&t.PublicToken, &t.AgentKey, &t.WorkspaceID, &t.AllowedDomains,
			&t.RateLimit, &t.MonthlyQuota, &t.MonthlyUsage, &t.QuotaResetAt,
			&t.Status, &t.ExpiresAt, &t.CreatedAt, &t.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scanning embed token row: %w", err)
		}
		if t.AllowedDomains == nil {
			t.AllowedDomains = []string{}
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embed token rows: %w", err)
	}

	return tokens, nil
}

// RecordUse increments the monthly usage counter and stamps last_used_at in a
// single atomic update, so concurrent requests never lose increments.
func (s *Store) RecordUse(ctx context.Context, publicToken string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE embed_tokens
		 SET monthly_usage = monthly_usage + 1, last_used_at = $2
		 WHERE public_token = $1`,
		publicToken, now,
	)
	if err != nil {
		return fmt.Errorf("recording embed token use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetQuota zeroes the usage counter and advances the reset boundary. The
// oldReset guard makes the rollover idempotent: a concurrent request that
// already reset the cycle leaves nothing for this call to do.
func (s *Store) ResetQuota(ctx context.Context, publicToken string, oldReset, newReset time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE embed_tokens
		 SET monthly_usage = 0, quota_reset_at = $3
		 WHERE public_token = $1 AND quota_reset_at = $2`,
		publicToken, oldReset, newReset,
	)
	if err != nil {
		return fmt.Errorf("resetting embed token quota: %w", err)
	}
	return nil
}

// GetUsageStats returns the owner-facing usage view for a token.
func (s *Store) GetUsageStats(ctx context.Context, publicToken string) (*UsageStats, error) {
	t, err := s.GetByPublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}
	return &UsageStats{
		MonthlyUsage: t.MonthlyUsage,
		MonthlyQuota: t.MonthlyQuota,
		QuotaResetAt: t.QuotaResetAt,
		RateLimit:    t.RateLimit,
		LastUsedAt:   t.LastUsedAt,
	}, nil
}
