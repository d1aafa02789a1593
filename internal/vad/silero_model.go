//go:build silero

package vad

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	sileroStateLen   = 2 * 1 * 128
	sileroContextLen = 64
)

var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// SileroConfig configures the Silero models
type SileroConfig struct {
	// ModelPath is the ONNX Silero VAD model file
	ModelPath string
	// SampleRate must be 8000 or 16000
	SampleRate int
	// RuntimeLibrary is the path to libonnxruntime; empty means auto-detect
	RuntimeLibrary string
	// Threshold is used by the flag detector only
	Threshold float64
}

func (c SileroConfig) validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("silero: model path must not be empty")
	}
	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		return fmt.Errorf("silero: sample rate %d unsupported, valid values are 8000 and 16000", c.SampleRate)
	}
	return nil
}

// InitRuntime initializes the ONNX runtime environment once per process
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = findONNXRuntimeLibrary()
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	runtimeInitialized = true
	return nil
}

// DestroyRuntime tears down the ONNX runtime environment
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy ONNX runtime: %w", err)
	}
	runtimeInitialized = false
	return nil
}

func findONNXRuntimeLibrary() string {
	paths := []string{
		os.Getenv("ONNXRUNTIME_LIB"),
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		for _, dir := range filepath.SplitList(ldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.so"))
		}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// SileroModel runs the Silero VAD ONNX model frame by frame and returns the
// speech probability. It carries the LSTM state and a short context window
// across calls, so it must see the stream in order.
type SileroModel struct {
	session    *ort.DynamicAdvancedSession
	sampleRate int

	state      [sileroStateLen]float32
	ctx        [sileroContextLen]float32
	seenSample bool
}

// NewSileroModel loads the model
func NewSileroModel(cfg SileroConfig) (*SileroModel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := InitRuntime(cfg.RuntimeLibrary); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SileroModel{session: session, sampleRate: cfg.SampleRate}, nil
}

// Infer returns the speech probability for samples in [-1, 1]
func (m *SileroModel) Infer(samples []float32) (float32, error) {
	if m.session == nil {
		return 0, fmt.Errorf("silero: model destroyed")
	}

	pcm := samples
	if m.seenSample {
		pcm = append(m.ctx[:len(m.ctx):len(m.ctx)], samples...)
	}
	if len(samples) >= sileroContextLen {
		copy(m.ctx[:], samples[len(samples)-sileroContextLen:])
	}
	m.seenSample = true

	input, err := ort.NewTensor(ort.NewShape(1, int64(len(pcm))), pcm)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	state, err := ort.NewTensor(ort.NewShape(2, 1, 128), m.state[:])
	if err != nil {
		return 0, fmt.Errorf("failed to create state tensor: %w", err)
	}
	defer state.Destroy()

	sr, err := ort.NewTensor(ort.NewShape(1), []int64{int64(m.sampleRate)})
	if err != nil {
		return 0, fmt.Errorf("failed to create sr tensor: %w", err)
	}
	defer sr.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	stateN, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		return 0, fmt.Errorf("failed to create stateN tensor: %w", err)
	}
	defer stateN.Destroy()

	if err := m.session.Run([]ort.Value{input, state, sr}, []ort.Value{output, stateN}); err != nil {
		return 0, fmt.Errorf("failed to run inference: %w", err)
	}

	copy(m.state[:], stateN.GetData())

	out := output.GetData()
	if len(out) == 0 {
		return 0, fmt.Errorf("empty output from inference")
	}
	return out[0], nil
}

// Reset clears the recurrent state and context
func (m *SileroModel) Reset() error {
	m.state = [sileroStateLen]float32{}
	m.ctx = [sileroContextLen]float32{}
	m.seenSample = false
	return nil
}

// Destroy releases the ONNX session
func (m *SileroModel) Destroy() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
