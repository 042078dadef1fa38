// Package executor implements the Retry/Timeout Executor (base spec §4.4):
// a bounded per-attempt timeout race around every LLM provider call, with
// durable failure logging and no inter-attempt backoff.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nimbussearch/genengine/internal/config"
	"github.com/nimbussearch/genengine/internal/store"
)

// CallMeta identifies the call being executed, for logging and the
// llm_failure audit trail.
type CallMeta struct {
	OrderID   *int64
	Provider  string
	Component string

	// RequestSnapshot, if set, is invoked only when an attempt times out —
	// an error response carries no useful snapshot to capture (base spec
	// §3's LLMFailure.request_snapshot is populated on timeout only).
	RequestSnapshot func() json.RawMessage
}

// Error is returned once every attempt is exhausted. It annotates the final
// attempt's failure with the attempt count and duration the pipeline needs
// to report on the order.
type Error struct {
	Component     string
	LLMAttempts   int
	LLMDurationMs int64
	Err           error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: exhausted %d attempt(s), last attempt took %dms: %v", e.Component, e.LLMAttempts, e.LLMDurationMs, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Executor runs Execute per CallMeta, consulting the Runtime Config Cache
// for the current max-attempts/timeout snapshot and persisting a Store
// llm_failure row for every failed attempt.
type Executor struct {
	store *store.Store
	cache *config.RuntimeCache
}

// New builds an Executor.
func New(st *store.Store, cache *config.RuntimeCache) *Executor {
	return &Executor{store: st, cache: cache}
}

type attemptResult[T any] struct {
	val T
	err error
}

// Execute runs op up to the current snapshot's MaxAttempts times, racing
// each attempt against a fresh per-attempt timeout context (base spec
// §4.4). Returns the first success, or a wrapped *Error once attempts are
// exhausted.
func Execute[T any](ctx context.Context, e *Executor, meta CallMeta, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	snap := e.cache.Get(ctx)
	maxAttempts := snap.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var lastDuration time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		correlationID := uuid.NewString()
		attemptCtx, cancel := context.WithTimeout(ctx, snap.Timeout)

		resCh := make(chan attemptResult[T], 1)
		start := time.Now()
		go func() {
			v, err := op(attemptCtx)
			resCh <- attemptResult[T]{val: v, err: err}
		}()

		var val T
		var attemptErr error
		var trigger string

		select {
		case r := <-resCh:
			val = r.val
			attemptErr = r.err
		case <-attemptCtx.Done():
			attemptErr = attemptCtx.Err()
			trigger = store.LLMFailureTriggerTimeout
		}
		duration := time.Since(start)
		cancel()

		if attemptErr == nil {
			slog.Debug("executor attempt succeeded",
				"component", meta.Component, "provider", meta.Provider,
				"correlation_id", correlationID, "attempt", attempt, "duration_ms", duration.Milliseconds())
			return val, nil
		}

		if trigger == "" {
			trigger = store.LLMFailureTriggerError
		}

		var snapshot json.RawMessage
		if trigger == store.LLMFailureTriggerTimeout && meta.RequestSnapshot != nil {
			snapshot = meta.RequestSnapshot()
		}

		errName := fmt.Sprintf("%T", attemptErr)
		errMsg := attemptErr.Error()
		if _, err := e.store.RecordLLMFailure(ctx, &store.LLMFailure{
			OrderID:         meta.OrderID,
			Provider:        meta.Provider,
			Component:       meta.Component,
			Trigger:         trigger,
			Attempt:         attempt,
			DurationMs:      duration.Milliseconds(),
			ErrorName:       &errName,
			ErrorMessage:    &errMsg,
			RequestSnapshot: snapshot,
		}); err != nil {
			slog.Error("failed to record llm failure", "component", meta.Component, "error", err)
		}

		slog.Error("executor attempt failed",
			"component", meta.Component, "provider", meta.Provider,
			"correlation_id", correlationID, "attempt", attempt, "trigger", trigger,
			"duration_ms", duration.Milliseconds(), "error", attemptErr)

		lastErr = attemptErr
		lastDuration = duration
		// no backoff sleep between attempts — base spec P6 requires exactly
		// maxAttempts attempts, never more, never slower than the per-attempt
		// timeout itself.
	}

	return zero, &Error{
		Component:     meta.Component,
		LLMAttempts:   maxAttempts,
		LLMDurationMs: lastDuration.Milliseconds(),
		Err:           lastErr,
	}
}
