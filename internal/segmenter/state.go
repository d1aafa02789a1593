// Package segmenter turns a stream of per-frame speech verdicts into speech
// segments.
//
// The Machine is a two-state hysteresis filter:
//
//	          speech
//	  Idle ───────────────▶ Speaking ◀──┐
//	   ▲                       │        │ speech / short silence
//	   │  silence > minSilence │        │
//	   │  speech  > minSpeech  ├────────┘
//	   └───────────────────────┘
//	         (segment end)
//
// While Idle and before any speech was seen, a no-speech watchdog ends the
// session once the stream clock passes the configured timeout.
package segmenter

// State is the segmentation state
type State int

const (
	Idle State = iota
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Event is what a frame or clock tick caused
type Event int

const (
	EventNone Event = iota
	// EventSpeechStart fires on the Idle to Speaking transition
	EventSpeechStart
	// EventSegmentEnd fires when a segment was finalized
	EventSegmentEnd
	// EventTimeout fires when the no-speech watchdog expires
	EventTimeout
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventSpeechStart:
		return "speech_start"
	case EventSegmentEnd:
		return "segment_end"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}
