// Package mock provides a scripted frame source for tests.
package mock

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/source"
)

// ErrDevice is a ready-made source failure
var ErrDevice = errors.New("mock: device failure")

// Source replays a fixed list of frames.
type Source struct {
	Frames []audio.Frame

	// Err is returned once Frames are exhausted. Nil means io.EOF.
	Err error
	// Live makes ReadFrame block after Frames are exhausted until ctx is
	// done, like an open microphone in a silent room.
	Live bool
	// Interval paces frames in wall-clock time
	Interval time.Duration
	// OpenErrs are returned by successive Open calls before one succeeds
	OpenErrs []error
	// OpenPanic, if set, is raised by Open
	OpenPanic any
	// ReadPanic, if set, is raised once Frames are exhausted
	ReadPanic any

	mu     sync.Mutex
	pos    int
	open   bool
	opens  int
	closes int
	reads  int
}

// NewSilence returns a source of n zero-valued frames
func NewSilence(n, sampleRate, frameSize int) *Source {
	frames := make([]audio.Frame, n)
	for i := range frames {
		frames[i] = audio.NewFrame(make([]int16, frameSize), sampleRate, audio.SamplesDuration(i*frameSize, sampleRate))
	}
	return &Source{Frames: frames}
}

func (s *Source) Name() string { return "mock" }

// Open implements source.Source
func (s *Source) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.opens++
	if s.OpenPanic != nil {
		panic(s.OpenPanic)
	}
	if len(s.OpenErrs) > 0 {
		err := s.OpenErrs[0]
		s.OpenErrs = s.OpenErrs[1:]
		return err
	}
	s.open = true
	return nil
}

// ReadFrame implements source.Source
func (s *Source) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if s.Interval > 0 {
		timer := time.NewTimer(s.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return audio.Frame{}, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	if !s.open {
		closed := s.closes > 0
		s.mu.Unlock()
		if closed {
			return audio.Frame{}, source.ErrClosed
		}
		return audio.Frame{}, source.ErrNotOpen
	}
	s.reads++
	if s.pos < len(s.Frames) {
		f := s.Frames[s.pos]
		s.pos++
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()

	if s.ReadPanic != nil {
		panic(s.ReadPanic)
	}
	if s.Err != nil {
		return audio.Frame{}, s.Err
	}
	if s.Live {
		<-ctx.Done()
		return audio.Frame{}, ctx.Err()
	}
	return audio.Frame{}, io.EOF
}

// Close implements source.Source
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.open = false
	return nil
}

// OpenCount returns the number of Open calls
func (s *Source) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// CloseCount returns the number of Close calls
func (s *Source) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Reads returns the number of ReadFrame calls made while open
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

var _ source.Source = (*Source)(nil)
