package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// RecordLLMFailure persists one failed attempt surfaced by the
// Retry/Timeout Executor (base spec §4.4). requestSnapshot is only
// populated when trigger is "timeout" — an error response carries no
// useful snapshot to capture.
func (s *Store) RecordLLMFailure(ctx context.Context, f *LLMFailure) (int64, error) {
	var snapshot json.RawMessage
	if f.Trigger == LLMFailureTriggerTimeout {
		snapshot = f.RequestSnapshot
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO llm_failures (order_id, provider, component, trigger, attempt, duration_ms, error_name, error_message, request_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		f.OrderID, f.Provider, f.Component, f.Trigger, f.Attempt, f.DurationMs, f.ErrorName, f.ErrorMessage, snapshot,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: record llm failure: %w", err)
	}
	return id, nil
}

// ListLLMFailuresForOrder returns every failure recorded for orderID, in
// attempt order.
func (s *Store) ListLLMFailuresForOrder(ctx context.Context, orderID int64) ([]*LLMFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, provider, component, trigger, attempt, duration_ms, error_name, error_message, request_snapshot, created_at
		FROM llm_failures WHERE order_id = $1 ORDER BY attempt ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: list llm failures: %w", err)
	}
	defer rows.Close()

	var out []*LLMFailure
	for rows.Next() {
		var f LLMFailure
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Provider, &f.Component, &f.Trigger, &f.Attempt, &f.DurationMs, &f.ErrorName, &f.ErrorMessage, &f.RequestSnapshot, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan llm failure: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
