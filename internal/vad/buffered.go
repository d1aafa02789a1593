package vad

import (
	"errors"
	"fmt"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/observability"
)

const (
	// DefaultBufferWindow is the number of samples scored per inference
	DefaultBufferWindow = 256
	// DefaultBufferCap bounds the samples held between calls
	DefaultBufferCap = 4096
)

// BufferedBackend decouples the frame size from the model's hop size. Frames
// are appended to a sample buffer and the model scores every complete window
// available; the highest probability decides the verdict. Until a window is
// available the verdict is pending. When the buffer exceeds its cap the oldest
// samples are discarded.
type BufferedBackend struct {
	model     ProbabilityModel
	threshold float64
	buf       *audio.RingBuffer
	window    []int16
}

// NewBufferedBackend creates a buffered-probability backend
func NewBufferedBackend(model ProbabilityModel, threshold float64, window, capacity int) (*BufferedBackend, error) {
	if model == nil {
		return nil, errors.New("vad: nil probability model")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("vad: threshold %v outside [0, 1]", threshold)
	}
	if window < 1 {
		return nil, fmt.Errorf("vad: buffer window %d must be at least 1", window)
	}
	if capacity < window {
		return nil, fmt.Errorf("vad: buffer cap %d smaller than window %d", capacity, window)
	}
	return &BufferedBackend{
		model:     model,
		threshold: threshold,
		buf:       audio.NewRingBuffer(capacity),
		window:    make([]int16, window),
	}, nil
}

func (b *BufferedBackend) Name() string { return "buffered-probability" }

// Buffered returns the number of samples waiting for a full window
func (b *BufferedBackend) Buffered() int {
	return b.buf.Available()
}

// Classify buffers the frame and scores every complete window
func (b *BufferedBackend) Classify(frame audio.Frame) (Verdict, error) {
	if dropped := b.buf.Push(frame.Samples); dropped > 0 {
		observability.RecordTrimmedSamples(b.Name(), dropped)
	}

	scored := false
	var best float32
	for b.buf.ReadFull(b.window) {
		p, err := b.model.Infer(audio.SamplesToFloat32(b.window))
		if err == nil {
			err = checkProbability(p)
		}
		if err != nil {
			return Verdict{}, &BackendError{Backend: b.Name(), Err: err}
		}
		if !scored || p > best {
			best = p
		}
		scored = true
	}

	if !scored {
		return Verdict{Pending: true}, nil
	}
	return Verdict{
		Speech:     float64(best) > b.threshold,
		Confidence: float64(best),
	}, nil
}

// Reset drops buffered samples and clears the model
func (b *BufferedBackend) Reset() error {
	b.buf.Clear()
	return b.model.Reset()
}

// Close destroys the model
func (b *BufferedBackend) Close() error {
	return b.model.Destroy()
}
