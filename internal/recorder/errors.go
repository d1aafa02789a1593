package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("recorder: session already started")
	// ErrCleanedUp is returned when Start is called after Cleanup
	ErrCleanedUp = errors.New("recorder: session cleaned up")
	// ErrFrameMismatch wraps a frame whose rate or size differs from the config
	ErrFrameMismatch = errors.New("recorder: frame does not match the configured format")
	// ErrCallbackPanic is logged when the segment callback panics
	ErrCallbackPanic = errors.New("recorder: segment callback panicked")
)

// SourceError is a frame source failure. It ends the session.
type SourceError struct {
	Source string
	// Op is "open" or "read"
	Op  string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("recorder: %s source %s failed: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
