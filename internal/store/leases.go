package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TryAcquireLease implements the Lease Manager's four-step acquisition
// (base spec §4.6) in a single transaction:
//  1. delete every row whose lease_expires_at has already passed;
//  2. look up the (possibly now-absent) lease for (scopeType, scopeKey);
//  3. if held by a different order, fail and report the current owner;
//  4. otherwise upsert the lease with a fresh expiry.
func (s *Store) TryAcquireLease(ctx context.Context, scopeType, scopeKey string, ownerOrderID int64, ttlSeconds int) (ok bool, currentOwner int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("store: try acquire lease: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM leases WHERE lease_expires_at <= now()`); err != nil {
		return false, 0, fmt.Errorf("store: try acquire lease: sweep expired: %w", err)
	}

	var existingOwner int64
	err = tx.QueryRowContext(ctx, `
		SELECT owner_order_id FROM leases WHERE scope_type = $1 AND scope_key = $2`,
		scopeType, scopeKey,
	).Scan(&existingOwner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// no live lease; fall through to acquire
	case err != nil:
		return false, 0, fmt.Errorf("store: try acquire lease: lookup: %w", err)
	case existingOwner != ownerOrderID:
		return false, existingOwner, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO leases (scope_type, scope_key, owner_order_id, lease_expires_at)
		VALUES ($1, $2, $3, now() + make_interval(secs => $4))
		ON CONFLICT (scope_type, scope_key) DO UPDATE
		SET owner_order_id = EXCLUDED.owner_order_id, lease_expires_at = EXCLUDED.lease_expires_at`,
		scopeType, scopeKey, ownerOrderID, ttlSeconds,
	)
	if err != nil {
		return false, 0, fmt.Errorf("store: try acquire lease: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("store: try acquire lease: commit: %w", err)
	}
	return true, ownerOrderID, nil
}

// RenewLeasesForOwner bumps lease_expires_at for every lease row owned by
// ownerOrderID.
func (s *Store) RenewLeasesForOwner(ctx context.Context, ownerOrderID int64, ttlSeconds int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE leases SET lease_expires_at = now() + make_interval(secs => $2)
		WHERE owner_order_id = $1`,
		ownerOrderID, ttlSeconds,
	)
	if err != nil {
		return fmt.Errorf("store: renew leases for owner: %w", err)
	}
	return nil
}

// ReleaseLeasesForOwner deletes every lease row owned by ownerOrderID. Called
// in the finally path of every order execution (base spec §4.6).
func (s *Store) ReleaseLeasesForOwner(ctx context.Context, ownerOrderID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE owner_order_id = $1`, ownerOrderID)
	if err != nil {
		return fmt.Errorf("store: release leases for owner: %w", err)
	}
	return nil
}
