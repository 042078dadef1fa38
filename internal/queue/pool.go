package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nimbussearch/genengine/internal/config"
	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/lease"
	"github.com/nimbussearch/genengine/internal/store"
)

// WorkerPool runs config.WorkerCount Worker goroutines against one Store,
// plus the periodic requeue sweep that recovers orders left `running` by a
// crashed process.
type WorkerPool struct {
	store    *store.Store
	dispatch *events.Dispatcher
	leases   *lease.Manager
	config   config.QueueConfig
	executor OrderExecutor

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	requeue requeueState
}

// NewWorkerPool builds a WorkerPool.
func NewWorkerPool(st *store.Store, dispatch *events.Dispatcher, leases *lease.Manager, cfg config.QueueConfig, executor OrderExecutor) *WorkerPool {
	return &WorkerPool{
		store:    st,
		dispatch: dispatch,
		leases:   leases,
		config:   cfg,
		executor: executor,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns worker goroutines and the requeue-sweep background task.
// Safe to call only once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	slog.Info("starting worker pool", "worker_count", p.config.WorkerCount)

	workerCount := p.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		id := fmt.Sprintf("worker-%d", i)
		worker := NewWorker(id, p.store, p.dispatch, p.leases, p.config, p.executor)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runRequeueSweep(ctx)
	}()

	slog.Info("worker pool started")
}

// Stop signals all workers and the requeue sweep to stop, waiting for any
// in-flight order to finish (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("worker pool stopped")
}

// Health reports the pool's current state.
func (p *WorkerPool) Health() PoolHealth {
	workerStats := make([]WorkerHealth, len(p.workers))
	busy := 0
	for i, w := range p.workers {
		stats := w.Health()
		workerStats[i] = stats
		if stats.Busy {
			busy++
		}
	}

	p.requeue.mu.Lock()
	lastScan := p.requeue.lastScan
	requeued := p.requeue.ordersRequeued
	p.requeue.mu.Unlock()

	return PoolHealth{
		TotalWorkers:    len(p.workers),
		BusyWorkers:     busy,
		Workers:         workerStats,
		LastRequeueScan: lastScan,
		OrdersRequeued:  requeued,
	}
}
