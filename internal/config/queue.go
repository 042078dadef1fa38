package config

import "time"

// QueueConfig contains Order Scheduler & Worker tunables (base spec §4.7).
// These values control how orders are polled, claimed, and recovered.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines running the poll loop
	// inside this process. The spec's "single cooperative worker" language
	// describes the per-order execution model (never two pipelines racing
	// for the same resource scope, enforced by the Lease Manager) — it does
	// not forbid more than one poller goroutine, mirroring the teacher's
	// WorkerCount-sized WorkerPool.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentOrders is checked by the Validator but is not read by the
	// worker pool; the number of orders running at once in this process is
	// bounded only by WorkerCount (each worker runs one order at a time).
	MaxConcurrentOrders int `yaml:"max_concurrent_orders"`

	// PollInterval is the base Δ from the base spec's state machine diagram.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter randomizes PollInterval by ±jitter to desynchronize
	// workers across processes.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// MaxRunSeconds is maxRunSeconds from requeueExpired (base spec §4.7):
	// a `running` order older than this is forced back to `queued`.
	MaxRunSeconds int `yaml:"max_run_seconds"`

	// HeartbeatInterval is how often a running order's updated_at is
	// refreshed so operators can distinguish a live long order from a
	// stuck one before MaxRunSeconds elapses.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// LeaseSeconds is the TTL applied by the Lease Manager when pipelines
	// acquire a query/intent/article scope (base spec §5: "60 s that
	// comfortably exceeds expected per-stage duration").
	LeaseSeconds int `yaml:"lease_seconds"`

	// GracefulShutdownTimeout bounds how long Stop waits for in-flight
	// orders to finish before returning.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		WorkerCount:             1,
		MaxConcurrentOrders:     5,
		PollInterval:            500 * time.Millisecond,
		PollIntervalJitter:      100 * time.Millisecond,
		MaxRunSeconds:           300,
		HeartbeatInterval:       15 * time.Second,
		LeaseSeconds:            60,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
