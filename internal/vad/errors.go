package vad

import (
	"errors"
	"fmt"
)

var (
	// ErrSuspended is reported while the guard's circuit breaker keeps a
	// failing backend from being called.
	ErrSuspended = errors.New("vad: backend suspended after repeated failures")

	// ErrInvalidProbability is returned when a model yields a value outside [0, 1]
	ErrInvalidProbability = errors.New("vad: probability out of range")

	// ErrSileroUnavailable is returned when Silero support was not compiled in
	ErrSileroUnavailable = errors.New("vad: silero support not built (rebuild with -tags silero)")
)

// BackendError is a classifier failure for a single frame. It never ends a
// session: Guard maps it to a non-speech verdict.
type BackendError struct {
	Backend string
	Err     error
	// Panic is set when the failure was a recovered panic
	Panic bool
}

func (e *BackendError) Error() string {
	if e.Panic {
		return fmt.Sprintf("vad: backend %s panicked: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("vad: backend %s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func checkProbability(p float32) error {
	// NaN fails both comparisons
	if !(p >= 0 && p <= 1) {
		return fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}
	return nil
}
