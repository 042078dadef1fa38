package engine

import (
	"errors"
	"fmt"
)

// ErrBadRequest is returned for malformed or missing input fields — an
// HTTP layer maps it to 400, mirroring the teacher's ValidationError split
// from entity-not-found (see pkg/services/errors.go).
var ErrBadRequest = errors.New("bad request")

// NewBadRequest wraps a field-specific reason under ErrBadRequest so
// callers can both errors.Is(err, ErrBadRequest) and read the detail.
func NewBadRequest(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrBadRequest)
}

// ErrResourceLocked reports that a scope already has an active order,
// mirroring base spec §6's 409 `{code:"RESOURCE_LOCKED", activeOrderId, scope}`.
type ErrResourceLocked struct {
	ActiveOrderID int64
	Scope         string // "query" | "intent" | "article"
}

func (e *ErrResourceLocked) Error() string {
	return fmt.Sprintf("resource locked: scope=%s active_order_id=%d", e.Scope, e.ActiveOrderID)
}
