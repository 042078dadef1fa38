package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// requeueState tracks requeue-sweep metrics (thread-safe).
type requeueState struct {
	mu             sync.Mutex
	lastScan       time.Time
	ordersRequeued int
}

// runRequeueSweep periodically scans for stale running orders and returns
// them to queued. The pool runs one sweep; RequeueOrder's conditional
// UPDATE keeps it idempotent if another process's sweep races it.
func (p *WorkerPool) runRequeueSweep(ctx context.Context) {
	interval := p.config.HeartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.requeueStaleOrders(ctx); err != nil {
				slog.Error("requeue sweep failed", "error", err)
			}
		}
	}
}

// requeueStaleOrders implements requeueExpired (base spec §4.7): a
// deliberate redesign from the teacher's detectAndRecoverOrphans, which
// marks a stale session terminally timed_out. Here a stale `running` order
// is returned to `queued` instead, so the scheduler re-dispatches it rather
// than abandoning it (see DESIGN.md for the Open-Question resolution).
func (p *WorkerPool) requeueStaleOrders(ctx context.Context) error {
	stale, err := p.store.ListStaleRunningOrders(ctx, p.config.MaxRunSeconds)
	if err != nil {
		return fmt.Errorf("list stale running orders: %w", err)
	}

	if len(stale) == 0 {
		p.requeue.mu.Lock()
		p.requeue.lastScan = time.Now()
		p.requeue.mu.Unlock()
		return nil
	}

	slog.Warn("found stale running orders", "count", len(stale))

	requeued := 0
	for _, order := range stale {
		if err := p.store.RequeueOrder(ctx, order.ID); err != nil {
			slog.Error("failed to requeue stale order", "order_id", order.ID, "error", err)
			continue
		}
		if err := p.leases.ReleaseAll(ctx, order.ID); err != nil {
			slog.Error("failed to release leases for requeued order", "order_id", order.ID, "error", err)
		}
		slog.Warn("stale order requeued", "order_id", order.ID, "last_update", order.UpdatedAt)
		requeued++
	}

	p.requeue.mu.Lock()
	p.requeue.lastScan = time.Now()
	p.requeue.ordersRequeued += requeued
	p.requeue.mu.Unlock()

	return nil
}
