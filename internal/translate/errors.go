package translate

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("backend not connected")
	ErrNoModel          = errors.New("no model selected")
	ErrUnknownModel     = errors.New("model not offered by backend")
	ErrInvalidPart      = errors.New("invalid part")
	ErrAborted          = errors.New("translation aborted")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// RetryExhaustedError reports a unit whose transient failures outlasted the
// retry policy.
type RetryExhaustedError struct {
	Page     int
	Part     int
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("translating page %d part %d: gave up after %d attempts: %v", e.Page, e.Part, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Is matches ErrRetriesExhausted.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}
