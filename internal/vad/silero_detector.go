//go:build silero

package vad

import (
	"fmt"
	"strings"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/lexiqai/speech-segmenter/internal/audio"
)

// SileroFlagDetector adapts the silero-vad-go segment detector to a per-frame
// flag: speech is on from a reported start until a reported end.
type SileroFlagDetector struct {
	detector  *speech.Detector
	window    int
	triggered bool
}

// NewSileroFlagDetector loads the model. Frames passed to IsSpeech must hold
// a whole number of model windows (512 samples at 16 kHz, 256 at 8 kHz).
func NewSileroFlagDetector(cfg SileroConfig) (*SileroFlagDetector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}

	d, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  cfg.ModelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  float32(threshold),
		// hangover is applied by the segmenter, not here
		MinSilenceDurationMs: 0,
		SpeechPadMs:          0,
	})
	if err != nil {
		return nil, fmt.Errorf("silero: create detector: %w", err)
	}
	return &SileroFlagDetector{detector: d, window: SileroWindow(cfg.SampleRate)}, nil
}

// SileroWindow returns the model window in samples for a sample rate
func SileroWindow(sampleRate int) int {
	if sampleRate == 8000 {
		return 256
	}
	return 512
}

// IsSpeech feeds the frame to the detector and returns the current flag
func (d *SileroFlagDetector) IsSpeech(samples []int16, _ int) (bool, error) {
	if len(samples)%d.window != 0 {
		return false, fmt.Errorf("silero: frame of %d samples is not a multiple of %d", len(samples), d.window)
	}

	segments, err := d.detector.Detect(audio.SamplesToFloat32(samples))
	if err != nil {
		// an end reported for speech that started in an earlier call
		if strings.Contains(err.Error(), "unexpected speech end") {
			d.triggered = false
			return false, nil
		}
		return false, err
	}

	for _, s := range segments {
		if s.SpeechStartAt > 0 || s.SpeechEndAt == 0 {
			d.triggered = true
		}
		if s.SpeechEndAt > 0 {
			d.triggered = false
		}
	}
	return d.triggered, nil
}

// Reset clears detector state
func (d *SileroFlagDetector) Reset() error {
	d.triggered = false
	return d.detector.Reset()
}

// Destroy releases the model
func (d *SileroFlagDetector) Destroy() error {
	return d.detector.Destroy()
}
