package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nimbussearch/genengine/internal/config"
	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/lease"
	"github.com/nimbussearch/genengine/internal/store"
)

// Worker polls Store for queued orders and drives each one through the
// configured OrderExecutor, directly modeled on the teacher's
// Worker.run/pollAndProcess state machine (base spec §4.7).
type Worker struct {
	id       string
	store    *store.Store
	dispatch *events.Dispatcher
	leases   *lease.Manager
	config   config.QueueConfig
	executor OrderExecutor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu              sync.RWMutex
	busy            bool
	currentOrderID  int64
	ordersProcessed int
	lastActivity    time.Time
}

// NewWorker builds a Worker.
func NewWorker(id string, st *store.Store, dispatch *events.Dispatcher, leases *lease.Manager, cfg config.QueueConfig, executor OrderExecutor) *Worker {
	return &Worker{
		id:           id,
		store:        st,
		dispatch:     dispatch,
		leases:       leases,
		config:       cfg,
		executor:     executor,
		stopCh:       make(chan struct{}),
		lastActivity: time.Now(),
	}
}

// Start begins the poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current order (if any)
// to finish. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current state.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:              w.id,
		Busy:            w.busy,
		CurrentOrderID:  w.currentOrderID,
		OrdersProcessed: w.ordersProcessed,
		LastActivity:    w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoOrdersAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing order", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims one order and runs it to completion (base spec
// §4.7's claimNext → execute → complete/fail → release leases cycle).
func (w *Worker) pollAndProcess(ctx context.Context) error {
	order, err := w.store.ClaimNextQueuedOrder(ctx)
	if err != nil {
		return fmt.Errorf("claim order: %w", err)
	}
	if order == nil {
		return ErrNoOrdersAvailable
	}

	log := slog.With("order_id", order.ID, "worker_id", w.id, "kind", order.Kind)
	log.Info("order claimed")

	w.setBusy(order.ID)
	defer w.setIdle()

	// order.started is emitted by the pipeline once it actually begins
	// running the order (internal/pipeline/search.go), not here — claiming
	// an order and starting its pipeline happen in the same synchronous
	// call below, so a second emit here would just duplicate the event.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	go w.runHeartbeat(heartbeatCtx, order.ID)

	result := w.executor.Execute(ctx, order)
	cancelHeartbeat()

	if result == nil {
		result = &ExecutionResult{Status: store.OrderStatusFailed, Error: fmt.Errorf("executor returned nil result")}
	}

	finishCtx := context.Background()
	w.finishOrder(finishCtx, order, result, log)

	if err := w.leases.ReleaseAll(finishCtx, order.ID); err != nil {
		log.Error("failed to release leases", "error", err)
	}

	w.mu.Lock()
	w.ordersProcessed++
	w.mu.Unlock()

	log.Info("order processing complete", "status", result.Status)
	return nil
}

func (w *Worker) finishOrder(ctx context.Context, order *store.Order, result *ExecutionResult, log *slog.Logger) {
	var resultSummary, errMsg *string
	if result.ResultSummary != "" {
		resultSummary = &result.ResultSummary
	}
	if result.Error != nil {
		msg := result.Error.Error()
		errMsg = &msg
	}

	status := result.Status
	if status != store.OrderStatusCompleted && status != store.OrderStatusFailed {
		status = store.OrderStatusFailed
		if errMsg == nil {
			msg := "pipeline returned an unrecognized terminal status"
			errMsg = &msg
		}
	}

	if err := w.store.FinishOrder(ctx, order.ID, status, resultSummary, errMsg); err != nil {
		log.Error("failed to persist terminal order status", "error", err)
	}

	entityID := events.OrderEntityID(order.ID)
	if status == store.OrderStatusCompleted {
		if _, err := w.dispatch.Emit(ctx, events.TopicOrder, entityID, events.TypeOrderCompleted, events.OrderCompletedPayload{
			OrderID:       order.ID,
			QueryID:       order.QueryID,
			ResultSummary: result.ResultSummary,
		}); err != nil {
			log.Warn("failed to emit order.completed", "error", err)
		}
		return
	}

	var msg string
	if result.Error != nil {
		msg = result.Error.Error()
	}
	if _, err := w.dispatch.Emit(ctx, events.TopicOrder, entityID, events.TypeOrderFailed, events.OrderFailedPayload{
		OrderID:      order.ID,
		QueryID:      order.QueryID,
		ErrorMessage: msg,
	}); err != nil {
		log.Warn("failed to emit order.failed", "error", err)
	}
}

// runHeartbeat periodically refreshes updated_at on the running order so
// operators can distinguish a live long-running order from a stuck one
// before MaxRunSeconds elapses (base spec §4.7).
func (w *Worker) runHeartbeat(ctx context.Context, orderID int64) {
	interval := w.config.HeartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, orderID); err != nil {
				slog.Warn("heartbeat update failed", "order_id", orderID, "error", err)
			}
			if err := w.leases.RenewAll(ctx, orderID, w.config.LeaseSeconds); err != nil {
				slog.Warn("lease renewal failed", "order_id", orderID, "error", err)
			}
		}
	}
}

// pollInterval returns the configured poll duration with jitter, so
// multiple worker goroutines desynchronize instead of polling in lockstep.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setBusy(orderID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = true
	w.currentOrderID = orderID
	w.lastActivity = time.Now()
}

func (w *Worker) setIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	w.currentOrderID = 0
	w.lastActivity = time.Now()
}
