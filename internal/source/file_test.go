package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/speech-segmenter/internal/audio"
)

func writeStereoWAV(t *testing.T, path string, frames, sampleRate int, value int16) {
	t.Helper()

	// build a mono file, then patch the header for two channels
	interleaved := make([]int16, frames*2)
	for i := range interleaved {
		interleaved[i] = value
	}
	wav := audio.EncodeWAV(interleaved, sampleRate)
	wav[22] = 2 // channels
	wav[32] = 4 // block align
	putUint32(wav[28:32], uint32(sampleRate*4))
	require.NoError(t, os.WriteFile(path, wav, 0o600))
}

func putUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func readAll(t *testing.T, src *FileSource) []audio.Frame {
	t.Helper()
	var frames []audio.Frame
	for {
		f, err := src.ReadFrame(context.Background())
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

func TestFileSource_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.wav")
	writeStereoWAV(t, path, 800, 8000, 1000) // 100ms

	src := NewFileSource(path, 16000, 512)
	require.NoError(t, src.Open(context.Background()))
	defer src.Close()

	assert.Equal(t, 2, src.Format().Channels)
	assert.Equal(t, 8000, src.Format().SampleRate)

	frames := readAll(t, src)
	require.Len(t, frames, 4) // 1600 samples at 16 kHz
	for _, f := range frames {
		assert.Equal(t, 512, f.Len())
		assert.Equal(t, 16000, f.SampleRate)
	}
	assert.Equal(t, int16(1000), frames[0].Samples[100])
	assert.Equal(t, int16(0), frames[3].Samples[100], "last frame is zero-padded")
}

func TestFileSource_RawPCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.pcm")
	samples := make([]int16, 1024)
	for i := range samples {
		samples[i] = int16(i)
	}
	require.NoError(t, os.WriteFile(path, audio.SamplesToBytes(samples), 0o600))

	src := NewFileSource(path, 16000, 512)
	require.NoError(t, src.Open(context.Background()))

	frames := readAll(t, src)
	require.Len(t, frames, 2)
	assert.Equal(t, int16(512), frames[1].Samples[0])
	assert.Equal(t, frames[0].End(), frames[1].Offset)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	_, err := src.ReadFrame(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileSource_Errors(t *testing.T) {
	t.Run("not open", func(t *testing.T) {
		src := NewFileSource("unused.wav", 16000, 512)
		_, err := src.ReadFrame(context.Background())
		assert.ErrorIs(t, err, ErrNotOpen)
	})

	t.Run("missing file", func(t *testing.T) {
		src := NewFileSource(filepath.Join(t.TempDir(), "missing.wav"), 16000, 512)
		assert.Error(t, src.Open(context.Background()))
	})

	t.Run("bad header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.wav")
		require.NoError(t, os.WriteFile(path, []byte("RIFFxxxxJUNK"), 0o600))

		src := NewFileSource(path, 16000, 512)
		assert.ErrorIs(t, src.Open(context.Background()), audio.ErrNotWAV)
	})

	t.Run("canceled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "call.pcm")
		require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o600))

		src := NewFileSource(path, 16000, 512)
		require.NoError(t, src.Open(context.Background()))
		defer src.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := src.ReadFrame(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
