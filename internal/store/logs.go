package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// AppendLog inserts an operator-facing breadcrumb row. Unlike events, logs
// carry no uniqueness or ordering invariant — a best-effort write failure
// is logged by the caller, never fatal to order processing.
func (s *Store) AppendLog(ctx context.Context, orderID int64, stage, level, message string, meta json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_logs (order_id, stage, level, message, meta)
		VALUES ($1, $2, $3, $4, $5)`,
		orderID, stage, level, message, meta,
	)
	if err != nil {
		return fmt.Errorf("store: append log: %w", err)
	}
	return nil
}

// ListLogs returns every breadcrumb for an order in chronological order.
func (s *Store) ListLogs(ctx context.Context, orderID int64) ([]*OrderLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, stage, level, message, meta, created_at
		FROM order_logs WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: list logs: %w", err)
	}
	defer rows.Close()

	var out []*OrderLog
	for rows.Next() {
		var l OrderLog
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Stage, &l.Level, &l.Message, &l.Meta, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan log: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
