//go:build !silero

package vad

// SileroConfig configures the Silero models
type SileroConfig struct {
	ModelPath      string
	SampleRate     int
	RuntimeLibrary string
	Threshold      float64
}

// SileroModel is unavailable without the silero build tag
type SileroModel struct{}

// NewSileroModel always fails without the silero build tag
func NewSileroModel(SileroConfig) (*SileroModel, error) {
	return nil, ErrSileroUnavailable
}

func (m *SileroModel) Infer([]float32) (float32, error) { return 0, ErrSileroUnavailable }
func (m *SileroModel) Reset() error                     { return nil }
func (m *SileroModel) Destroy() error                   { return nil }

// SileroFlagDetector is unavailable without the silero build tag
type SileroFlagDetector struct{}

// NewSileroFlagDetector always fails without the silero build tag
func NewSileroFlagDetector(SileroConfig) (*SileroFlagDetector, error) {
	return nil, ErrSileroUnavailable
}

func (d *SileroFlagDetector) IsSpeech([]int16, int) (bool, error) { return false, ErrSileroUnavailable }
func (d *SileroFlagDetector) Reset() error                        { return nil }
func (d *SileroFlagDetector) Destroy() error                      { return nil }

// SileroWindow returns the model window in samples for a sample rate
func SileroWindow(sampleRate int) int {
	if sampleRate == 8000 {
		return 256
	}
	return 512
}

// InitRuntime is a no-op without the silero build tag
func InitRuntime(string) error { return nil }

// DestroyRuntime is a no-op without the silero build tag
func DestroyRuntime() error { return nil }
