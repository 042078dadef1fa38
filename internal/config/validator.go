package config

import (
	"errors"
	"fmt"
)

// Validator runs fail-fast structural checks over a loaded Config, mirroring
// the teacher's validator.go but scoped to the five sections this engine
// carries (store/queue/retry/mail/provider) instead of agents/chains/MCP
// servers/LLM providers.
type Validator struct {
	cfg *Config
}

// NewValidator builds a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every section check and joins all failures into a single
// error so an operator sees every problem in one pass, not one-at-a-time.
func (v *Validator) ValidateAll() error {
	var errs []error
	errs = append(errs, v.validateStore()...)
	errs = append(errs, v.validateQueue()...)
	errs = append(errs, v.validateRetry()...)
	errs = append(errs, v.validateMail()...)
	errs = append(errs, v.validateProvider()...)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
}

func (v *Validator) validateStore() []error {
	var errs []error
	s := v.cfg.Store
	if s.Host == "" {
		errs = append(errs, NewValidationError("store", "store", "host", ErrMissingRequiredField))
	}
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, NewValidationError("store", "store", "port", ErrInvalidValue))
	}
	if s.Database == "" {
		errs = append(errs, NewValidationError("store", "store", "database", ErrMissingRequiredField))
	}
	if s.MaxOpenConns <= 0 {
		errs = append(errs, NewValidationError("store", "store", "max_open_conns", ErrInvalidValue))
	}
	if s.MaxIdleConns < 0 || s.MaxIdleConns > s.MaxOpenConns {
		errs = append(errs, NewValidationError("store", "store", "max_idle_conns", ErrInvalidValue))
	}
	return errs
}

func (v *Validator) validateQueue() []error {
	var errs []error
	q := v.cfg.Queue
	if q.WorkerCount <= 0 {
		errs = append(errs, NewValidationError("queue", "queue", "worker_count", ErrInvalidValue))
	}
	if q.MaxConcurrentOrders <= 0 {
		errs = append(errs, NewValidationError("queue", "queue", "max_concurrent_orders", ErrInvalidValue))
	}
	if q.PollInterval <= 0 {
		errs = append(errs, NewValidationError("queue", "queue", "poll_interval", ErrInvalidValue))
	}
	if q.MaxRunSeconds <= 0 {
		errs = append(errs, NewValidationError("queue", "queue", "max_run_seconds", ErrInvalidValue))
	}
	if q.LeaseSeconds <= 0 {
		errs = append(errs, NewValidationError("queue", "queue", "lease_seconds", ErrInvalidValue))
	}
	return errs
}

func (v *Validator) validateRetry() []error {
	var errs []error
	r := v.cfg.Retry
	if r.MaxAttempts < 1 {
		errs = append(errs, NewValidationError("retry", "retry", "max_attempts", ErrInvalidValue))
	}
	if r.Timeout <= 0 {
		errs = append(errs, NewValidationError("retry", "retry", "timeout", ErrInvalidValue))
	}
	return errs
}

func (v *Validator) validateMail() []error {
	var errs []error
	m := v.cfg.Mail
	if m.ContextMaxMessages < 1 {
		errs = append(errs, NewValidationError("mail", "mail", "context_max_messages", ErrInvalidValue))
	}
	if m.AttachmentsMaxCount < 0 {
		errs = append(errs, NewValidationError("mail", "mail", "attachments_max_count", ErrInvalidValue))
	}
	if m.AttachmentsMaxTextChars < 0 {
		errs = append(errs, NewValidationError("mail", "mail", "attachments_max_text_chars", ErrInvalidValue))
	}
	return errs
}

func (v *Validator) validateProvider() []error {
	var errs []error
	p := v.cfg.Provider
	switch p.Kind {
	case "grpc":
		if p.GRPCAddress == "" {
			errs = append(errs, NewValidationError("provider", "provider", "grpc_address", ErrMissingRequiredField))
		}
	case "stub":
		// no additional requirements
	default:
		errs = append(errs, NewValidationError("provider", "provider", "kind", fmt.Errorf("%w: must be \"grpc\" or \"stub\"", ErrInvalidValue)))
	}
	return errs
}
