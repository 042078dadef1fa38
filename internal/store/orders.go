package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CreateOrder inserts a new order in the queued state.
func (s *Store) CreateOrder(ctx context.Context, o *Order) (int64, error) {
	payload := o.RequestPayload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (query_id, kind, intent_id, article_id, status, requested_by, request_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		o.QueryID, o.Kind, o.IntentID, o.ArticleID, OrderStatusQueued, o.RequestedBy, payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create order: %w", err)
	}
	return id, nil
}

// GetOrder loads an order by id.
func (s *Store) GetOrder(ctx context.Context, id int64) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query_id, kind, intent_id, article_id, status, requested_by,
		       request_payload, result_summary, error_message,
		       created_at, started_at, finished_at, updated_at
		FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func scanOrder(row *sql.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.QueryID, &o.Kind, &o.IntentID, &o.ArticleID, &o.Status, &o.RequestedBy,
		&o.RequestPayload, &o.ResultSummary, &o.ErrorMessage,
		&o.CreatedAt, &o.StartedAt, &o.FinishedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan order: %w", err)
	}
	return &o, nil
}

// ClaimNextQueuedOrder atomically claims the oldest queued order, moving it
// to running and stamping started_at, using SELECT ... FOR UPDATE SKIP
// LOCKED so concurrent worker goroutines never race for the same row.
// Returns nil, nil when no order is queued.
func (s *Store) ClaimNextQueuedOrder(ctx context.Context) (*Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: claim order: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM orders
		WHERE status = $1
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, OrderStatusQueued,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim order: select: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, started_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3`,
		OrderStatusRunning, id, OrderStatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("store: claim order: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// lost the race to another claimer between select and update
		return nil, nil
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, query_id, kind, intent_id, article_id, status, requested_by,
		       request_payload, result_summary, error_message,
		       created_at, started_at, finished_at, updated_at
		FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: claim order: commit: %w", err)
	}
	return order, nil
}

// FinishOrder transitions a running order into a terminal state
// (completed/failed/cancelled), stamping finished_at. Only a queued/running
// order may terminate; calling this twice on the same order is a conflict.
func (s *Store) FinishOrder(ctx context.Context, id int64, status string, resultSummary, errMsg *string) error {
	if status != OrderStatusCompleted && status != OrderStatusFailed && status != OrderStatusCancelled {
		return fmt.Errorf("store: finish order: invalid terminal status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, result_summary = $2, error_message = $3, finished_at = now(), updated_at = now()
		WHERE id = $4 AND status IN ($5, $6)`,
		status, resultSummary, errMsg, id, OrderStatusRunning, OrderStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("store: finish order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// RequeueOrder returns a running order to queued, clearing started_at and
// stamping an error_message note, the crash-recovery action the Order
// Scheduler & Worker takes on an orphaned order (base spec §4.7) instead of
// marking it terminally failed.
func (s *Store) RequeueOrder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, started_at = NULL, updated_at = now(),
		       error_message = 'requeued after exceeding max run time'
		WHERE id = $2 AND status = $3`,
		OrderStatusQueued, id, OrderStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("store: requeue order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// CancelQueuedOrder cancels an order that has not started running yet.
func (s *Store) CancelQueuedOrder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, finished_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3`,
		OrderStatusCancelled, id, OrderStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("store: cancel order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// Heartbeat refreshes updated_at on a running order so operators can tell a
// live long-running order from a stuck one before MaxRunSeconds elapses.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET updated_at = now() WHERE id = $1 AND status = $2`,
		id, OrderStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("store: heartbeat: %w", err)
	}
	return nil
}

// activeOrderStatuses lists the statuses that count as "in flight" for the
// conflict rules enforced at order acceptance (base spec §4.6).
const activeOrderStatuses = `($1, $2)`

// FindActiveOrderForQuery returns the oldest active (queued/running) order
// for queryID, of any kind — the check behind "a query_full order blocks
// any other order for Q" and "a per-intent order is rejected while any
// active query_full order exists for the same Q".
func (s *Store) FindActiveOrderForQuery(ctx context.Context, queryID int64) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query_id, kind, intent_id, article_id, status, requested_by,
		       request_payload, result_summary, error_message,
		       created_at, started_at, finished_at, updated_at
		FROM orders
		WHERE query_id = $1 AND status IN `+activeOrderStatuses+`
		ORDER BY created_at ASC LIMIT 1`,
		queryID, OrderStatusQueued, OrderStatusRunning,
	)
	o, err := scanOrder(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find active order for query: %w", err)
	}
	return o, nil
}

// FindActiveOrderForIntent returns the oldest active order scoped to
// exactly (queryID, intentID) — "a per-intent order blocks only other
// orders for that (Q, intent)".
func (s *Store) FindActiveOrderForIntent(ctx context.Context, queryID, intentID int64) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query_id, kind, intent_id, article_id, status, requested_by,
		       request_payload, result_summary, error_message,
		       created_at, started_at, finished_at, updated_at
		FROM orders
		WHERE query_id = $1 AND intent_id = $2 AND status IN `+activeOrderStatuses+`
		ORDER BY created_at ASC LIMIT 1`,
		queryID, intentID, OrderStatusQueued, OrderStatusRunning,
	)
	o, err := scanOrder(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find active order for intent: %w", err)
	}
	return o, nil
}

// FindActiveOrderForArticle returns the oldest active order scoped to
// articleID — the equivalent conflict check for article_content_generate,
// this repository's narrow-target Article-phase order kind.
func (s *Store) FindActiveOrderForArticle(ctx context.Context, articleID int64) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query_id, kind, intent_id, article_id, status, requested_by,
		       request_payload, result_summary, error_message,
		       created_at, started_at, finished_at, updated_at
		FROM orders
		WHERE article_id = $1 AND status IN `+activeOrderStatuses+`
		ORDER BY created_at ASC LIMIT 1`,
		articleID, OrderStatusQueued, OrderStatusRunning,
	)
	o, err := scanOrder(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find active order for article: %w", err)
	}
	return o, nil
}

// OrderFilter narrows ListOrders; zero-value fields are unfiltered.
type OrderFilter struct {
	QueryID *int64
	Kind    string
	Status  string
	Limit   int
}

// ListOrders returns orders newest-first, optionally narrowed by filter.
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error) {
	query := `
		SELECT id, query_id, kind, intent_id, article_id, status, requested_by,
		       request_payload, result_summary, error_message,
		       created_at, started_at, finished_at, updated_at
		FROM orders WHERE 1=1`
	var args []any
	if filter.QueryID != nil {
		args = append(args, *filter.QueryID)
		query += fmt.Sprintf(" AND query_id = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.QueryID, &o.Kind, &o.IntentID, &o.ArticleID, &o.Status, &o.RequestedBy,
			&o.RequestPayload, &o.ResultSummary, &o.ErrorMessage,
			&o.CreatedAt, &o.StartedAt, &o.FinishedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// ListStaleRunningOrders returns running orders whose started_at is older
// than maxRunSeconds — candidates for the crash-recovery requeue sweep.
// started_at, not updated_at, is the clock: updated_at is refreshed by
// Heartbeat every HeartbeatInterval for as long as a worker's heartbeat
// goroutine keeps ticking, even if the order is hung inside a Gateway call
// that never returns, so it would never cross a staleness threshold of its
// own.
func (s *Store) ListStaleRunningOrders(ctx context.Context, maxRunSeconds int) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_id, kind, intent_id, article_id, status, requested_by,
		       request_payload, result_summary, error_message,
		       created_at, started_at, finished_at, updated_at
		FROM orders
		WHERE status = $1 AND started_at < now() - make_interval(secs => $2)`,
		OrderStatusRunning, maxRunSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list stale orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.QueryID, &o.Kind, &o.IntentID, &o.ArticleID, &o.Status, &o.RequestedBy,
			&o.RequestPayload, &o.ResultSummary, &o.ErrorMessage,
			&o.CreatedAt, &o.StartedAt, &o.FinishedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan stale order: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}
