package store

import (
	"context"
	"database/sql"
	"fmt"
)

// StartRunStats inserts a running article_generation_run row.
func (s *Store) StartRunStats(ctx context.Context, orderID, articleID *int64, kind string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO run_stats (order_id, article_id, kind, status, attempts)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id`,
		orderID, articleID, kind, RunStatusRunning,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: start run stats: %w", err)
	}
	return id, nil
}

// FinishRunStats records the terminal outcome of an article-generation run,
// the data the engine uses for latency estimation.
func (s *Store) FinishRunStats(ctx context.Context, id int64, status string, attempts int, durationMs, llmDurationMs int64, errMsg *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE run_stats
		SET status = $1, attempts = $2, duration_ms = $3, llm_duration_ms = $4, error_message = $5, updated_at = now()
		WHERE id = $6`,
		status, attempts, durationMs, llmDurationMs, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("store: finish run stats: %w", err)
	}
	return nil
}

// AverageDurationMs returns the mean duration_ms of completed runs of kind,
// the latency estimate the engine facade exposes to callers before they
// submit a new order.
func (s *Store) AverageDurationMs(ctx context.Context, kind string) (int64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(duration_ms) FROM run_stats WHERE kind = $1 AND status = $2`,
		kind, RunStatusCompleted,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("store: average duration: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return int64(avg.Float64), nil
}
