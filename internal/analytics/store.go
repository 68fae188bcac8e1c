package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for widget analytics.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BatchInsert writes a slice of events to the database in a single multi-row
// INSERT statement. It is a no-op when events is empty.
func (s *Store) BatchInsert(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 9 // columns per row (excluding server-generated id)
	args := make([]any, 0, len(events)*cols)
	rows := make([]string, 0, len(events))

	for i, ev := range events {
		base := i * cols
		rows = append(rows, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
			base+6, base+7, base+8, base+9,
		))
		args = append(args,
			ev.AgentKey,
			ev.PublicToken,
			ev.Kind,
			ev.Question,
			ev.Rating,
			ev.Comment,
			ev.Origin,
			ev.LatencyMs,
			ev.Timestamp,
		)
	}

	query := `INSERT INTO analytics_events
		(agent_key, public_token, kind, question, rating, comment, origin, latency_ms, timestamp)
		VALUES ` + strings.Join(rows, ", ")

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting analytics events: %w", err)
	}
	return nil
}

// GetAgentSummary returns aggregate widget metrics for one agent within the
// query's time range.
func (s *Store) GetAgentSummary(ctx context.Context, q SummaryQuery) (*AgentSummary, error) {
	where := "WHERE agent_key = $1"
	args := []any{q.AgentKey}

	if !q.From.IsZero() {
		args = append(args, q.From)
		where += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		where += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	query := `SELECT
		COALESCE(SUM(CASE WHEN kind = 'query' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = 'feedback' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = 'feedback' AND rating > 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = 'feedback' AND rating < 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = 'widget_load' THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(latency_ms) FILTER (WHERE kind = 'query'), 0)
	FROM analytics_events ` + where

	summary := &AgentSummary{AgentKey: q.AgentKey}
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&summary.TotalQueries,
		&summary.TotalFeedback,
		&summary.PositiveFeedback,
		&summary.NegativeFeedback,
		&summary.WidgetLoads,
		&summary.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("querying agent summary: %w", err)
	}
	return summary, nil
}

// ListRecentQuestions returns the latest query events for an agent, newest
// first, for the dashboard.
func (s *Store) ListRecentQuestions(ctx context.Context, agentKey string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_key, public_token, kind, question, rating, comment, origin, latency_ms, timestamp
		 FROM analytics_events
		 WHERE agent_key = $1 AND kind = 'query'
		 ORDER BY timestamp DESC LIMIT $2`,
		agentKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent questions: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		if err := rows.Scan(&ev.ID, &ev.AgentKey, &ev.PublicToken, &ev.Kind, &ev.Question,
			&ev.Rating, &ev.Comment, &ev.Origin, &ev.LatencyMs, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning analytics event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analytics events: %w", err)
	}
	return events, nil
}
