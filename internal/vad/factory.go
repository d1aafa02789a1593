package vad

import (
	"fmt"

	"github.com/lexiqai/speech-segmenter/internal/config"
)

// NewBackend builds the backend named by cfg.Backend (aliases accepted) on
// top of the model named by cfg.Model. Configuration problems are reported as
// errors matching config.ErrInvalid.
func NewBackend(cfg *config.Config) (Backend, error) {
	kind, ok := config.CanonicalBackend(cfg.Backend)
	if !ok {
		return nil, invalid("backend", cfg.Backend, "unknown backend")
	}

	sileroCfg := SileroConfig{
		ModelPath:      cfg.ModelPath,
		SampleRate:     cfg.SampleRate,
		RuntimeLibrary: cfg.ONNXRuntimeLib,
		Threshold:      cfg.Threshold,
	}

	switch kind {
	case config.BackendBinaryFlagSmoothed:
		detector, err := newFlagDetector(cfg, sileroCfg)
		if err != nil {
			return nil, err
		}
		b, err := NewSmoothedFlagBackend(detector, cfg.SmoothingWindow)
		if err != nil {
			_ = detector.Destroy()
			return nil, invalid("smoothing_window", cfg.SmoothingWindow, err.Error())
		}
		return b, nil

	case config.BackendBufferedProbability:
		model, err := newProbabilityModel(cfg, sileroCfg)
		if err != nil {
			return nil, err
		}
		b, err := NewBufferedBackend(model, cfg.Threshold, cfg.BufferWindow, cfg.BufferCap)
		if err != nil {
			_ = model.Destroy()
			return nil, invalid("buffer_window", cfg.BufferWindow, err.Error())
		}
		return b, nil

	default:
		model, err := newProbabilityModel(cfg, sileroCfg)
		if err != nil {
			return nil, err
		}
		b, err := NewThresholdBackend(model, cfg.Threshold)
		if err != nil {
			_ = model.Destroy()
			return nil, invalid("threshold", cfg.Threshold, err.Error())
		}
		return b, nil
	}
}

func newProbabilityModel(cfg *config.Config, sileroCfg SileroConfig) (ProbabilityModel, error) {
	switch cfg.Model {
	case "energy":
		return NewEnergyModel(cfg.EnergyThreshold), nil
	case "silero":
		m, err := NewSileroModel(sileroCfg)
		if err != nil {
			return nil, invalid("model", cfg.Model, err.Error())
		}
		return m, nil
	default:
		return nil, invalid("model", cfg.Model, "unknown model")
	}
}

func newFlagDetector(cfg *config.Config, sileroCfg SileroConfig) (FlagDetector, error) {
	switch cfg.Model {
	case "energy":
		return NewEnergyDetector(cfg.EnergyThreshold), nil
	case "silero":
		if window := SileroWindow(cfg.SampleRate); cfg.FrameSize%window != 0 {
			return nil, invalid("frame_size", cfg.FrameSize,
				fmt.Sprintf("silero flag detection needs a multiple of %d samples", window))
		}
		d, err := NewSileroFlagDetector(sileroCfg)
		if err != nil {
			return nil, invalid("model", cfg.Model, err.Error())
		}
		return d, nil
	default:
		return nil, invalid("model", cfg.Model, "unknown model")
	}
}

func invalid(field string, value any, reason string) error {
	return &config.FieldError{Field: field, Value: value, Reason: reason}
}
