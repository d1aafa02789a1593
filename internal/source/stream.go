package source

import (
	"context"
	"io"
	"sync"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/observability"
)

// stream turns audio pushed by a producer (a capture callback or a socket
// reader) into fixed-size frames pulled by the session worker. When the
// buffer is full new samples are dropped and counted.
type stream struct {
	name       string
	sampleRate int
	frameSize  int
	buf        *audio.RingBuffer
	ready      chan struct{}

	mu       sync.Mutex
	finished bool
	err      error

	consumed int
}

func newStream(name string, sampleRate, frameSize, capacity int) *stream {
	if capacity < frameSize {
		capacity = frameSize
	}
	return &stream{
		name:       name,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		buf:        audio.NewRingBuffer(capacity),
		ready:      make(chan struct{}, 1),
	}
}

func (s *stream) write(samples []int16) {
	if n := s.buf.Write(samples); n < len(samples) {
		observability.RecordDroppedSamples(s.name, len(samples)-n)
	}
	s.signal()
}

// finish marks the end of the stream. A nil err ends it with io.EOF once
// the buffered samples are drained. Only the first call has an effect.
func (s *stream) finish(err error) {
	s.mu.Lock()
	if !s.finished {
		s.finished = true
		s.err = err
	}
	s.mu.Unlock()
	s.signal()
}

func (s *stream) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *stream) state() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished, s.err
}

// next returns the next frame. A short tail left at the end of the stream
// is zero-padded to a full frame.
func (s *stream) next(ctx context.Context) (audio.Frame, error) {
	samples := make([]int16, s.frameSize)
	for {
		finished, err := s.state()

		if s.buf.ReadFull(samples) {
			return s.frame(samples), nil
		}
		if finished {
			if err != nil {
				return audio.Frame{}, err
			}
			if s.buf.Read(samples) > 0 {
				return s.frame(samples), nil
			}
			return audio.Frame{}, io.EOF
		}

		select {
		case <-ctx.Done():
			return audio.Frame{}, ctx.Err()
		case <-s.ready:
		}
	}
}

func (s *stream) frame(samples []int16) audio.Frame {
	f := audio.NewFrame(samples, s.sampleRate, audio.SamplesDuration(s.consumed, s.sampleRate))
	s.consumed += len(samples)
	return f
}
