package vad

import (
	"math"

	"github.com/lexiqai/speech-segmenter/internal/audio"
)

// DefaultEnergyThreshold is the RMS level (16-bit scale) treated as speech
const DefaultEnergyThreshold = 500.0

// EnergyDetector is a FlagDetector that marks a frame as speech when its RMS
// energy exceeds a fixed threshold.
type EnergyDetector struct {
	threshold float64
}

// NewEnergyDetector creates an energy flag detector.
// A non-positive threshold selects DefaultEnergyThreshold.
func NewEnergyDetector(threshold float64) *EnergyDetector {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return &EnergyDetector{threshold: threshold}
}

// IsSpeech reports whether the frame is louder than the threshold
func (d *EnergyDetector) IsSpeech(samples []int16, _ int) (bool, error) {
	return audio.CalculateRMS(samples) > d.threshold, nil
}

func (d *EnergyDetector) Reset() error   { return nil }
func (d *EnergyDetector) Destroy() error { return nil }

// EnergyModel is a ProbabilityModel derived from RMS energy:
// p = rms / (rms + threshold). A frame at exactly the threshold scores 0.5,
// so a 0.5 decision threshold matches EnergyDetector.
type EnergyModel struct {
	threshold float64
}

// NewEnergyModel creates an energy probability model.
// A non-positive threshold selects DefaultEnergyThreshold.
func NewEnergyModel(threshold float64) *EnergyModel {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return &EnergyModel{threshold: threshold}
}

// Infer maps the RMS energy of normalized samples to a probability
func (m *EnergyModel) Infer(samples []float32) (float32, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, s := range samples {
		v := float64(s) * 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return float32(rms / (rms + m.threshold)), nil
}

func (m *EnergyModel) Reset() error   { return nil }
func (m *EnergyModel) Destroy() error { return nil }

// DetectSilence reports whether samples are quieter than threshold
func DetectSilence(samples []int16, threshold float64) bool {
	return audio.CalculateRMS(samples) < threshold
}
