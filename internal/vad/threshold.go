package vad

import (
	"errors"
	"fmt"

	"github.com/lexiqai/speech-segmenter/internal/audio"
)

// ThresholdBackend scores every frame with a probability model and reports
// speech when the probability strictly exceeds the threshold.
type ThresholdBackend struct {
	model     ProbabilityModel
	threshold float64
}

// NewThresholdBackend creates a probability-threshold backend
func NewThresholdBackend(model ProbabilityModel, threshold float64) (*ThresholdBackend, error) {
	if model == nil {
		return nil, errors.New("vad: nil probability model")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("vad: threshold %v outside [0, 1]", threshold)
	}
	return &ThresholdBackend{model: model, threshold: threshold}, nil
}

func (b *ThresholdBackend) Name() string { return "probability-threshold" }

// Classify scores the frame
func (b *ThresholdBackend) Classify(frame audio.Frame) (Verdict, error) {
	if frame.Len() == 0 {
		return Verdict{}, nil
	}

	p, err := b.model.Infer(frame.Float32())
	if err == nil {
		err = checkProbability(p)
	}
	if err != nil {
		return Verdict{}, &BackendError{Backend: b.Name(), Err: err}
	}

	return Verdict{
		Speech:     float64(p) > b.threshold,
		Confidence: float64(p),
	}, nil
}

// Reset clears the model's recurrent state
func (b *ThresholdBackend) Reset() error {
	return b.model.Reset()
}

// Close destroys the model
func (b *ThresholdBackend) Close() error {
	return b.model.Destroy()
}
