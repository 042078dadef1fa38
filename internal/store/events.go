package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// AppendEvent inserts the next event for (topic, entityID), assigning seq as
// max(seq)+1 under the same transaction so (topic, entity_id, seq) stays
// dense — base spec §3/§4.5. Returns the persisted Event.
func (s *Store) AppendEvent(ctx context.Context, topic, entityID, eventType string, payload json.RawMessage) (*Event, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	var ev *Event
	err := withBusyRetry(func() error {
		e, err := s.appendEventOnce(ctx, topic, entityID, eventType, payload)
		if err != nil {
			return err
		}
		ev = e
		return nil
	})
	return ev, err
}

// appendEventOnce is AppendEvent's single attempt — split out so
// withBusyRetry can run it twice against two fresh transactions, since a
// failed transaction can't be recommitted. A transaction-scoped advisory
// lock keyed by (topic, entity_id), taken before the seq lookup, serializes
// concurrent appends to the same stream; under contention (e.g. two worker
// goroutines both replying on the same mail thread, base spec §4.5) the
// loser blocks until the winner commits and then reads the fresh max(seq),
// but can still surface 40001/55P03 on some isolation levels — hence the
// retry instead of assuming the lock alone is enough.
func (s *Store) appendEventOnce(ctx context.Context, topic, entityID, eventType string, payload json.RawMessage) (*Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: append event: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2::text))`,
		topic, entityID,
	); err != nil {
		return nil, fmt.Errorf("store: append event: lock: %w", err)
	}

	var nextSeq int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE topic = $1 AND entity_id = $2`,
		topic, entityID,
	).Scan(&nextSeq)
	if err != nil {
		return nil, fmt.Errorf("store: append event: next seq: %w", err)
	}

	var ev Event
	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (topic, entity_id, seq, type, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, topic, entity_id, seq, type, payload, created_at`,
		topic, entityID, nextSeq, eventType, payload,
	).Scan(&ev.ID, &ev.Topic, &ev.EntityID, &ev.Seq, &ev.Type, &ev.Payload, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: append event: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: append event: commit: %w", err)
	}
	return &ev, nil
}

// EventsAfter returns every event for (topic, entityID) with seq > afterSeq,
// in seq order — the replay primitive a reconnecting subscriber uses to
// catch up (base spec §4.5).
func (s *Store) EventsAfter(ctx context.Context, topic, entityID string, afterSeq int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, entity_id, seq, type, payload, created_at
		FROM events WHERE topic = $1 AND entity_id = $2 AND seq > $3 ORDER BY seq ASC`,
		topic, entityID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("store: events after: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.EntityID, &ev.Seq, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// LastSeq returns the highest seq recorded for (topic, entityID), or 0 if no
// events have been emitted yet.
func (s *Store) LastSeq(ctx context.Context, topic, entityID string) (int, error) {
	var seq int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM events WHERE topic = $1 AND entity_id = $2`,
		topic, entityID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("store: last seq: %w", err)
	}
	return seq, nil
}
