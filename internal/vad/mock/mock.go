// Package mock provides test doubles for the vad package interfaces.
package mock

import (
	"errors"
	"sync"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/vad"
)

// ErrScripted is returned by scripted failures
var ErrScripted = errors.New("mock: scripted classifier failure")

// Model is a mock vad.ProbabilityModel.
type Model struct {
	// InferFunc is called when Infer is invoked. If nil, Infer returns 0.
	InferFunc func(samples []float32) (float32, error)

	// InferCalls records all calls to Infer
	InferCalls [][]float32

	ResetCalled   bool
	DestroyCalled bool

	mu sync.Mutex
}

// NewModelWithProb returns a model that always reports prob
func NewModelWithProb(prob float32) *Model {
	return &Model{
		InferFunc: func([]float32) (float32, error) { return prob, nil },
	}
}

// NewModelWithSequence returns a model that reports probs in order,
// cycling back to the start once exhausted.
func NewModelWithSequence(probs ...float32) *Model {
	idx := 0
	return &Model{
		InferFunc: func([]float32) (float32, error) {
			if len(probs) == 0 {
				return 0, nil
			}
			p := probs[idx]
			idx = (idx + 1) % len(probs)
			return p, nil
		},
	}
}

// Infer implements vad.ProbabilityModel
func (m *Model) Infer(samples []float32) (float32, error) {
	m.mu.Lock()
	samplesCopy := make([]float32, len(samples))
	copy(samplesCopy, samples)
	m.InferCalls = append(m.InferCalls, samplesCopy)
	fn := m.InferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(samples)
	}
	return 0, nil
}

// Reset implements vad.ProbabilityModel
func (m *Model) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalled = true
	return nil
}

// Destroy implements vad.ProbabilityModel
func (m *Model) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DestroyCalled = true
	return nil
}

// InferCallCount returns the number of times Infer was called
func (m *Model) InferCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InferCalls)
}

// FlagDetector is a mock vad.FlagDetector.
type FlagDetector struct {
	// IsSpeechFunc is called when IsSpeech is invoked. If nil, IsSpeech returns false.
	IsSpeechFunc func(samples []int16, sampleRate int) (bool, error)

	Calls         int
	ResetCalled   bool
	DestroyCalled bool

	mu sync.Mutex
}

// NewFlagDetectorWithSequence returns a detector that reports flags in
// order, cycling back to the start once exhausted.
func NewFlagDetectorWithSequence(flags ...bool) *FlagDetector {
	idx := 0
	return &FlagDetector{
		IsSpeechFunc: func([]int16, int) (bool, error) {
			if len(flags) == 0 {
				return false, nil
			}
			f := flags[idx]
			idx = (idx + 1) % len(flags)
			return f, nil
		},
	}
}

// IsSpeech implements vad.FlagDetector
func (d *FlagDetector) IsSpeech(samples []int16, sampleRate int) (bool, error) {
	d.mu.Lock()
	d.Calls++
	fn := d.IsSpeechFunc
	d.mu.Unlock()

	if fn != nil {
		return fn(samples, sampleRate)
	}
	return false, nil
}

// Reset implements vad.FlagDetector
func (d *FlagDetector) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCalled = true
	return nil
}

// Destroy implements vad.FlagDetector
func (d *FlagDetector) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DestroyCalled = true
	return nil
}

// Step is one scripted Backend response
type Step int

const (
	Silence Step = iota
	Speech
	Pending
	Fail
	Panic
)

// Script parses a compact verdict script: 'S' speech, 'N' or '_' silence,
// '.' pending, 'E' error, 'P' panic. Other characters are ignored.
func Script(s string) []Step {
	steps := make([]Step, 0, len(s))
	for _, r := range s {
		switch r {
		case 'S':
			steps = append(steps, Speech)
		case 'N', '_':
			steps = append(steps, Silence)
		case '.':
			steps = append(steps, Pending)
		case 'E':
			steps = append(steps, Fail)
		case 'P':
			steps = append(steps, Panic)
		}
	}
	return steps
}

// Backend is a scripted vad.Backend. Once the script is exhausted it keeps
// returning Tail.
type Backend struct {
	Steps []Step
	Tail  Step

	// Frames records every classified frame
	Frames     []audio.Frame
	ResetCalls int
	CloseCalls int

	mu  sync.Mutex
	pos int
}

// NewBackend returns a backend that plays the given script, then silence
func NewBackend(script string) *Backend {
	return &Backend{Steps: Script(script), Tail: Silence}
}

func (b *Backend) Name() string { return "mock" }

// Classify implements vad.Backend
func (b *Backend) Classify(frame audio.Frame) (vad.Verdict, error) {
	b.mu.Lock()
	b.Frames = append(b.Frames, frame)
	step := b.Tail
	if b.pos < len(b.Steps) {
		step = b.Steps[b.pos]
		b.pos++
	}
	b.mu.Unlock()

	switch step {
	case Speech:
		return vad.Verdict{Speech: true, Confidence: 1}, nil
	case Pending:
		return vad.Verdict{Pending: true}, nil
	case Fail:
		return vad.Verdict{}, ErrScripted
	case Panic:
		panic("mock: scripted classifier panic")
	default:
		return vad.Verdict{}, nil
	}
}

// Reset implements vad.Backend
func (b *Backend) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ResetCalls++
	return nil
}

// Close implements vad.Backend
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCalls++
	return nil
}

// ClassifyCount returns the number of classified frames
func (b *Backend) ClassifyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Frames)
}

var (
	_ vad.ProbabilityModel = (*Model)(nil)
	_ vad.FlagDetector     = (*FlagDetector)(nil)
	_ vad.Backend          = (*Backend)(nil)
)
