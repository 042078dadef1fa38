// Package lease implements the Lease Manager (base spec §4.6): the
// at-most-one-in-flight reservation that keeps two orders from racing to
// regenerate the same query/intent/article scope concurrently.
package lease

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nimbussearch/genengine/internal/store"
)

// Scope types.
const (
	ScopeQuery   = "query"
	ScopeIntent  = "intent"
	ScopeArticle = "article"
)

// QueryScopeKey builds the scope key for a query-level lease.
func QueryScopeKey(queryID int64) string {
	return fmt.Sprintf("query:%d", queryID)
}

// IntentScopeKey builds the scope key for an intent-level lease.
func IntentScopeKey(queryID, intentID int64) string {
	return fmt.Sprintf("intent:%d:%d", queryID, intentID)
}

// ArticleScopeKey builds the scope key for an article-level lease.
func ArticleScopeKey(articleID int64) string {
	return fmt.Sprintf("article:%d", articleID)
}

// Held describes who already owns a contested scope. Nothing in this
// package returns it: TryAcquire reports the owner as a plain order id.
type Held struct {
	ScopeType    string
	ScopeKey     string
	OwnerOrderID int64
}

// Manager wraps Store's transactional lease primitives with the scope-type
// constants and logging the rest of the engine consumes.
type Manager struct {
	store *store.Store
}

// NewManager builds a Manager backed by st.
func NewManager(st *store.Store) *Manager {
	return &Manager{store: st}
}

// TryAcquire attempts to claim scopeType/scopeKey for orderID for
// leaseSeconds. Returns (true, 0) on success or (false, ownerOrderID) if a
// different order already holds a live lease on that scope.
func (m *Manager) TryAcquire(ctx context.Context, orderID int64, scopeType, scopeKey string, leaseSeconds int) (bool, int64, error) {
	ok, owner, err := m.store.TryAcquireLease(ctx, scopeType, scopeKey, orderID, leaseSeconds)
	if err != nil {
		return false, 0, fmt.Errorf("lease: try acquire: %w", err)
	}
	if !ok {
		slog.Debug("lease contested", "scope_type", scopeType, "scope_key", scopeKey, "requested_by", orderID, "held_by", owner)
	}
	return ok, owner, nil
}

// RenewAll extends every lease owned by orderID for another leaseSeconds —
// called periodically by the order's heartbeat while it runs.
func (m *Manager) RenewAll(ctx context.Context, orderID int64, leaseSeconds int) error {
	if err := m.store.RenewLeasesForOwner(ctx, orderID, leaseSeconds); err != nil {
		return fmt.Errorf("lease: renew all: %w", err)
	}
	return nil
}

// ReleaseAll drops every lease owned by orderID. Callers invoke this in the
// finally path of order execution (base spec §4.6) regardless of outcome.
func (m *Manager) ReleaseAll(ctx context.Context, orderID int64) error {
	if err := m.store.ReleaseLeasesForOwner(ctx, orderID); err != nil {
		return fmt.Errorf("lease: release all: %w", err)
	}
	return nil
}
