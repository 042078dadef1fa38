// Package queue implements the Order Scheduler & Worker (base spec §4.7):
// the poll/claim/execute/release loop that pulls queued orders off Store
// and drives them through a pipeline, one at a time per worker goroutine.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/nimbussearch/genengine/internal/store"
)

// ErrNoOrdersAvailable indicates no queued order was claimed this tick.
var ErrNoOrdersAvailable = errors.New("queue: no orders available")

// OrderExecutor owns a pipeline's entire run for one order: it writes
// intents/articles/mail replies and emits progress events itself. The
// worker only handles claiming, heartbeat, terminal status, and lease
// release around the call.
type OrderExecutor interface {
	Execute(ctx context.Context, order *store.Order) *ExecutionResult
}

// ExecutionResult is the terminal outcome of one order's pipeline run. All
// intermediate state was already written to Store by the executor.
type ExecutionResult struct {
	Status        string // store.OrderStatusCompleted / OrderStatusFailed
	ResultSummary string
	Error         error
}

// WorkerHealth reports one worker goroutine's current state.
type WorkerHealth struct {
	ID              string    `json:"id"`
	Busy            bool      `json:"busy"`
	CurrentOrderID  int64     `json:"current_order_id,omitempty"`
	OrdersProcessed int       `json:"orders_processed"`
	LastActivity    time.Time `json:"last_activity"`
}

// PoolHealth reports the whole worker pool's current state.
type PoolHealth struct {
	TotalWorkers    int            `json:"total_workers"`
	BusyWorkers     int            `json:"busy_workers"`
	Workers         []WorkerHealth `json:"workers"`
	LastRequeueScan time.Time      `json:"last_requeue_scan"`
	OrdersRequeued  int            `json:"orders_requeued"`
}
