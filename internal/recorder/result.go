package recorder

import "time"

// Outcome is how a session ended
type Outcome int

const (
	// OutcomeSegment means a segment ended the session
	OutcomeSegment Outcome = iota + 1
	// OutcomeTimeout means no speech was heard before the no-speech timeout
	OutcomeTimeout
	// OutcomeStopped means Stop was called or the context was canceled
	OutcomeStopped
	// OutcomeEndOfStream means the source ran out of audio while idle
	OutcomeEndOfStream
	// OutcomeSourceFailed means the frame source failed
	OutcomeSourceFailed
	// OutcomeCallbackFailed means the segment callback panicked
	OutcomeCallbackFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSegment:
		return "segment"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeStopped:
		return "stopped"
	case OutcomeEndOfStream:
		return "end_of_stream"
	case OutcomeSourceFailed:
		return "source_failed"
	case OutcomeCallbackFailed:
		return "callback_failed"
	default:
		return "unknown"
	}
}

// Result summarizes a finished session. Segments themselves are only handed
// to the callback.
type Result struct {
	SessionID string
	Outcome   Outcome
	// Segments is the number of segments passed to the callback
	Segments int
	// Frames is the number of frames classified
	Frames int
	// StreamTime is the audio time covered, including read timeouts
	StreamTime time.Duration
}
