// Package engine is the facade the out-of-scope HTTP/SSE transport layer
// would call into (base spec §6): query submission, order lifecycle, and
// stream subscription, each backed by the leaf components (Store, Provider
// Gateway, Event Dispatcher, Lease Manager, Retry/Timeout Executor).
package engine

import (
	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/executor"
	"github.com/nimbussearch/genengine/internal/provider"
	"github.com/nimbussearch/genengine/internal/store"
)

// Engine is the facade over every leaf component. It never runs a
// pipeline itself — that is the Worker's job once it claims an order off
// the queue (base spec §4.7) — it only accepts requests, enqueues orders,
// and hands back streams. Per-scope mutual exclusion at order acceptance
// is enforced directly against Store's order rows (see orders.go); the
// Lease Manager is a pipeline-execution-time concern, not an acceptance-time
// one, so Engine does not hold one.
type Engine struct {
	store    *store.Store
	gateway  provider.Gateway
	dispatch *events.Dispatcher
	executor *executor.Executor
}

// New builds an Engine over its leaf components.
func New(st *store.Store, gw provider.Gateway, dispatch *events.Dispatcher, exec *executor.Executor) *Engine {
	return &Engine{store: st, gateway: gw, dispatch: dispatch, executor: exec}
}
