package vad

import (
	"errors"
	"fmt"

	"github.com/lexiqai/speech-segmenter/internal/audio"
)

// DefaultSmoothingWindow is the number of raw verdicts in the majority vote
const DefaultSmoothingWindow = 5

// SmoothedFlagBackend wraps a boolean detector and reports speech when a
// strict majority of the last N raw decisions were speech. A detector failure
// counts as a non-speech vote.
type SmoothedFlagBackend struct {
	detector FlagDetector
	history  []bool
	next     int
	count    int
	votes    int
}

// NewSmoothedFlagBackend creates a binary-flag backend with a majority
// window of the given size
func NewSmoothedFlagBackend(detector FlagDetector, window int) (*SmoothedFlagBackend, error) {
	if detector == nil {
		return nil, errors.New("vad: nil flag detector")
	}
	if window < 1 {
		return nil, fmt.Errorf("vad: smoothing window %d must be at least 1", window)
	}
	return &SmoothedFlagBackend{
		detector: detector,
		history:  make([]bool, window),
	}, nil
}

func (b *SmoothedFlagBackend) Name() string { return "binary-flag-smoothed" }

// Classify records the detector's raw decision and returns the smoothed one
func (b *SmoothedFlagBackend) Classify(frame audio.Frame) (Verdict, error) {
	raw, err := b.detector.IsSpeech(frame.Samples, frame.SampleRate)
	if err != nil {
		raw = false
	}
	b.push(raw)

	if err != nil {
		return Verdict{}, &BackendError{Backend: b.Name(), Err: err}
	}

	return Verdict{
		Speech:     b.votes > b.count/2,
		Confidence: float64(b.votes) / float64(b.count),
	}, nil
}

func (b *SmoothedFlagBackend) push(raw bool) {
	if b.count == len(b.history) {
		if b.history[b.next] {
			b.votes--
		}
	} else {
		b.count++
	}
	b.history[b.next] = raw
	if raw {
		b.votes++
	}
	b.next = (b.next + 1) % len(b.history)
}

// Reset clears the vote history and the detector
func (b *SmoothedFlagBackend) Reset() error {
	for i := range b.history {
		b.history[i] = false
	}
	b.next, b.count, b.votes = 0, 0, 0
	return b.detector.Reset()
}

// Close destroys the detector
func (b *SmoothedFlagBackend) Close() error {
	return b.detector.Destroy()
}
