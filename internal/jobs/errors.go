package jobs

import (
	"errors"
	"fmt"
)

// ErrValidation marks submissions rejected before a job record is created
// (malformed range, unknown source). Wrap it with context via ValidationErrorf.
var ErrValidation = errors.New("validation error")

func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ExtractionError wraps a failed or timed-out extractor call. Unit names the
// work item the failure is scoped to (a frame, a candidate, the query text).
type ExtractionError struct {
	Unit string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Unit, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StoreError wraps a persistence failure after unit-level retries were
// exhausted; it is fatal to the running job.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %v", e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
