// Package vad classifies audio frames as speech or non-speech.
//
// A Backend turns one frame into a Verdict. Three backends are provided:
//
//   - ThresholdBackend: a probability model scored per frame, speech when p > threshold
//   - SmoothedFlagBackend: a boolean detector smoothed by majority vote over recent frames
//   - BufferedBackend: a probability model fed fixed-size windows drawn from a sample buffer
//
// Models are pluggable: the energy heuristics in this package need no native
// libraries, and Silero models are available when built with the "silero" tag.
// Wrap any backend in a Guard so that model failures become non-speech
// verdicts instead of errors.
package vad

import (
	"github.com/lexiqai/speech-segmenter/internal/audio"
)

// Verdict is the classification of one frame
type Verdict struct {
	Speech bool
	// Confidence is the model probability, or the vote share for flag backends
	Confidence float64
	// Pending is set while a buffering backend has not gathered enough
	// samples to score. A pending verdict is non-speech.
	Pending bool
	// Err is set by Guard when a backend failure was absorbed
	Err error
}

// Label returns a short metrics label for the verdict
func (v Verdict) Label() string {
	switch {
	case v.Err != nil:
		return "error"
	case v.Pending:
		return "pending"
	case v.Speech:
		return "speech"
	default:
		return "silence"
	}
}

// Backend classifies frames. Implementations may keep their own buffers but
// are driven from a single goroutine.
type Backend interface {
	// Name identifies the backend in logs and metrics
	Name() string
	// Classify returns the verdict for one frame
	Classify(frame audio.Frame) (Verdict, error)
	// Reset clears per-stream state so the backend can be reused
	Reset() error
	// Close releases model resources
	Close() error
}

// ProbabilityModel scores normalized samples with a speech probability in [0, 1].
type ProbabilityModel interface {
	// Infer runs inference on samples in [-1, 1] and returns the speech probability
	Infer(samples []float32) (float32, error)
	// Reset clears recurrent model state between streams
	Reset() error
	// Destroy releases the model
	Destroy() error
}

// FlagDetector makes a raw speech / non-speech decision for a frame.
type FlagDetector interface {
	IsSpeech(samples []int16, sampleRate int) (bool, error)
	Reset() error
	Destroy() error
}
