package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/observability"
)

// samples per channel decoded per read
const fileChunkSamples = 4096

// FileSource reads a WAV file, or raw 16-bit little-endian mono PCM at the
// target rate, and serves it as frames as fast as they are requested. WAV
// input is downmixed to mono and resampled to the target rate.
type FileSource struct {
	path       string
	sampleRate int
	frameSize  int

	file     *os.File
	data     io.Reader
	format   audio.WAVFormat
	pending  []int16
	consumed int
	eof      bool
	closed   bool
}

// NewFileSource creates a source for path. The file is opened by Open.
func NewFileSource(path string, sampleRate, frameSize int) *FileSource {
	return &FileSource{
		path:       path,
		sampleRate: sampleRate,
		frameSize:  frameSize,
	}
}

func (s *FileSource) Name() string { return "file" }

// Format returns the input format found by Open
func (s *FileSource) Format() audio.WAVFormat {
	return s.format
}

// Open opens the file and parses its header
func (s *FileSource) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.file != nil {
		return nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}

	r := bufio.NewReader(f)
	magic, _ := r.Peek(4)
	isWAV := bytes.Equal(magic, []byte("RIFF")) || strings.EqualFold(filepath.Ext(s.path), ".wav")

	if isWAV {
		format, data, err := audio.ReadWAVHeader(r)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to read %s: %w", s.path, err)
		}
		s.format, s.data = format, data
	} else {
		s.format = audio.WAVFormat{SampleRate: s.sampleRate, Channels: 1, BitDepth: 16}
		s.data = r
	}

	s.file = f
	s.pending = nil
	s.consumed = 0
	s.eof = false
	s.closed = false
	return nil
}

// ReadFrame returns the next frame. The last frame is zero-padded.
func (s *FileSource) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if s.closed {
		return audio.Frame{}, ErrClosed
	}
	if s.file == nil {
		return audio.Frame{}, ErrNotOpen
	}

	for len(s.pending) < s.frameSize && !s.eof {
		if err := ctx.Err(); err != nil {
			return audio.Frame{}, err
		}
		if err := s.fill(); err != nil {
			observability.RecordSourceError(s.Name())
			return audio.Frame{}, err
		}
	}

	if len(s.pending) == 0 {
		return audio.Frame{}, io.EOF
	}

	samples := make([]int16, s.frameSize)
	n := copy(samples, s.pending)
	s.pending = s.pending[n:]

	f := audio.NewFrame(samples, s.sampleRate, audio.SamplesDuration(s.consumed, s.sampleRate))
	s.consumed += s.frameSize
	return f, nil
}

func (s *FileSource) fill() error {
	blockAlign := 2 * s.format.Channels
	buf := make([]byte, fileChunkSamples*blockAlign)

	n, err := io.ReadFull(s.data, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	// drop a trailing partial sample block
	n -= n % blockAlign
	if n == 0 {
		return nil
	}
	observability.RecordAudioBytes(s.Name(), n)

	samples, err := audio.BytesToSamples(buf[:n])
	if err != nil {
		return err
	}
	samples = audio.Downmix(samples, s.format.Channels)
	samples = audio.Resample(samples, s.format.SampleRate, s.sampleRate)
	s.pending = append(s.pending, samples...)
	return nil
}

// Close closes the file. It is safe to call more than once.
func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.closed = true
	return err
}
