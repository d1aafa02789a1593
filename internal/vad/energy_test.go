package vad

import (
	"math"
	"testing"

	"github.com/lexiqai/speech-segmenter/internal/audio"
)

func constantSamples(n int, amplitude int16) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return samples
}

func TestEnergyDetector_SpeechAndSilence(t *testing.T) {
	d := NewEnergyDetector(500.0)

	speech, err := d.IsSpeech(constantSamples(160, 5000), 8000)
	if err != nil || !speech {
		t.Errorf("Expected high-energy frame to be speech, got %v (%v)", speech, err)
	}

	speech, _ = d.IsSpeech(constantSamples(160, 10), 8000)
	if speech {
		t.Error("Expected low-energy frame to be silence")
	}
}

func TestEnergyDetector_ThresholdIsExclusive(t *testing.T) {
	d := NewEnergyDetector(1000.0)

	if speech, _ := d.IsSpeech(constantSamples(160, 1000), 8000); speech {
		t.Error("Expected RMS equal to the threshold not to count as speech")
	}
	if speech, _ := d.IsSpeech(constantSamples(160, 1001), 8000); !speech {
		t.Error("Expected RMS above the threshold to count as speech")
	}
}

func TestEnergyDetector_Threshold(t *testing.T) {
	samples := constantSamples(160, 1000)

	if speech, _ := NewEnergyDetector(100.0).IsSpeech(samples, 8000); !speech {
		t.Error("Expected low threshold to detect speech")
	}
	if speech, _ := NewEnergyDetector(5000.0).IsSpeech(samples, 8000); speech {
		t.Error("Expected high threshold to not detect speech")
	}
}

func TestEnergyDetector_DefaultThreshold(t *testing.T) {
	d := NewEnergyDetector(0)
	if d.threshold != DefaultEnergyThreshold {
		t.Errorf("Expected default threshold %.1f, got %.1f", DefaultEnergyThreshold, d.threshold)
	}
}

func TestEnergyModel_Probability(t *testing.T) {
	m := NewEnergyModel(500.0)

	p, err := m.Infer(audio.SamplesToFloat32(constantSamples(512, 500)))
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if math.Abs(float64(p)-0.5) > 1e-3 {
		t.Errorf("Expected p=0.5 at the energy threshold, got %f", p)
	}

	loud, _ := m.Infer(audio.SamplesToFloat32(constantSamples(512, 8000)))
	quiet, _ := m.Infer(audio.SamplesToFloat32(constantSamples(512, 20)))
	if !(loud > 0.9 && quiet < 0.1) {
		t.Errorf("Expected loud > 0.9 and quiet < 0.1, got %f and %f", loud, quiet)
	}

	if p, _ := m.Infer(nil); p != 0 {
		t.Errorf("Expected 0 for empty input, got %f", p)
	}
}

func TestDetectSilence(t *testing.T) {
	if DetectSilence([]int16{5000, 5000, 5000}, 1000.0) {
		t.Error("Expected high energy samples to not be silence")
	}
	if !DetectSilence([]int16{10, 10, 10}, 1000.0) {
		t.Error("Expected low energy samples to be silence")
	}
}
