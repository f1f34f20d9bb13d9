package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownEngine       = errors.New("unknown engine")
	ErrEngineNotConfigured = errors.New("engine not configured")
	ErrInvalidFile         = errors.New("invalid input file")
	ErrShuttingDown        = errors.New("service is shutting down")
)

// InputError rejects a submission synchronously. No job is created.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *InputError) Unwrap() error { return e.Err }
