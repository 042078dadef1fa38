package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nimbussearch/genengine/internal/config"
	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/lease"
	"github.com/nimbussearch/genengine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("genengine_test"),
		postgres.WithUsername("genengine"),
		postgres.WithPassword("genengine"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	st, err := store.Open(ctx, config.StoreConfig{
		Host: host, Port: port.Int(), User: "genengine", Password: "genengine",
		Database: "genengine_test", SSLMode: "disable",
		MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// fakeExecutor lets tests script the terminal result of an order's run
// without building a real pipeline.
type fakeExecutor struct {
	result     *ExecutionResult
	executedID int64
	blockCh    chan struct{}
}

func (f *fakeExecutor) Execute(ctx context.Context, order *store.Order) *ExecutionResult {
	f.executedID = order.ID
	if f.blockCh != nil {
		<-f.blockCh
	}
	return f.result
}

func awaitCondition(t *testing.T, timeout, interval time.Duration, msg string, condition func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out: %s", msg)
		default:
			if condition() {
				return
			}
			time.Sleep(interval)
		}
	}
}

func TestWorker_PollAndProcess_CompletesOrder(t *testing.T) {
	st := newTestStore(t)
	dispatch := events.NewDispatcher(st)
	leases := lease.NewManager(st)
	ctx := context.Background()

	orderID, err := st.CreateOrder(ctx, &store.Order{Kind: store.OrderKindQueryFull, RequestedBy: store.RequestedByUser})
	require.NoError(t, err)

	_, _, err = leases.TryAcquire(ctx, orderID, lease.ScopeQuery, lease.QueryScopeKey(1), 60)
	require.NoError(t, err)

	exec := &fakeExecutor{result: &ExecutionResult{Status: store.OrderStatusCompleted, ResultSummary: "done"}}
	cfg := testQueueConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollIntervalJitter = 0

	w := NewWorker("worker-0", st, dispatch, leases, cfg, exec)

	require.NoError(t, w.pollAndProcess(ctx))

	assert.Equal(t, orderID, exec.executedID)

	order, err := st.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderStatusCompleted, order.Status)
	require.NotNil(t, order.ResultSummary)
	assert.Equal(t, "done", *order.ResultSummary)

	// leases acquired under the order's name must have been released
	ok, _, err := leases.TryAcquire(ctx, orderID+1, lease.ScopeQuery, lease.QueryScopeKey(1), 60)
	require.NoError(t, err)
	assert.True(t, ok, "lease should have been released by pollAndProcess")
}

func TestWorker_PollAndProcess_NoOrdersReturnsSentinel(t *testing.T) {
	st := newTestStore(t)
	dispatch := events.NewDispatcher(st)
	leases := lease.NewManager(st)

	w := NewWorker("worker-0", st, dispatch, leases, testQueueConfig(), &fakeExecutor{})

	err := w.pollAndProcess(context.Background())
	assert.ErrorIs(t, err, ErrNoOrdersAvailable)
}

func TestWorkerPool_ProcessesQueuedOrders(t *testing.T) {
	st := newTestStore(t)
	dispatch := events.NewDispatcher(st)
	leases := lease.NewManager(st)
	ctx := context.Background()

	orderID, err := st.CreateOrder(ctx, &store.Order{Kind: store.OrderKindQueryFull, RequestedBy: store.RequestedByUser})
	require.NoError(t, err)

	exec := &fakeExecutor{result: &ExecutionResult{Status: store.OrderStatusCompleted}}
	cfg := testQueueConfig()
	cfg.WorkerCount = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollIntervalJitter = 0

	pool := NewWorkerPool(st, dispatch, leases, cfg, exec)
	runCtx, cancel := context.WithCancel(ctx)
	pool.Start(runCtx)
	defer func() {
		cancel()
		pool.Stop()
	}()

	awaitCondition(t, 5*time.Second, 20*time.Millisecond, "order should complete", func() bool {
		order, err := st.GetOrder(ctx, orderID)
		return err == nil && order.Status == store.OrderStatusCompleted
	})
}

func TestRequeueSweep_ReturnsStaleOrderToQueued(t *testing.T) {
	st := newTestStore(t)
	dispatch := events.NewDispatcher(st)
	leases := lease.NewManager(st)
	ctx := context.Background()

	orderID, err := st.CreateOrder(ctx, &store.Order{Kind: store.OrderKindQueryFull, RequestedBy: store.RequestedByUser})
	require.NoError(t, err)
	_, err = st.ClaimNextQueuedOrder(ctx)
	require.NoError(t, err)

	cfg := testQueueConfig()
	cfg.MaxRunSeconds = 0 // treat the just-claimed order as immediately stale

	pool := NewWorkerPool(st, dispatch, leases, cfg, &fakeExecutor{})
	require.NoError(t, pool.requeueStaleOrders(ctx))

	order, err := st.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderStatusQueued, order.Status)
	assert.Nil(t, order.StartedAt)

	h := pool.Health()
	assert.Equal(t, 1, h.OrdersRequeued)
}
