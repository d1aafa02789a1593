package vad_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/speech-segmenter/internal/vad"
	"github.com/lexiqai/speech-segmenter/internal/vad/mock"
)

func TestBufferedBackend(t *testing.T) {
	t.Run("pending until a window is buffered", func(t *testing.T) {
		model := mock.NewModelWithProb(0.9)
		b, err := vad.NewBufferedBackend(model, 0.5, 256, 1024)
		require.NoError(t, err)

		v, err := b.Classify(frameOf(160))
		require.NoError(t, err)
		assert.True(t, v.Pending)
		assert.False(t, v.Speech)
		assert.Equal(t, "pending", v.Label())
		assert.Equal(t, 160, b.Buffered())
		assert.Equal(t, 0, model.InferCallCount())

		v, err = b.Classify(frameOf(160))
		require.NoError(t, err)
		assert.False(t, v.Pending)
		assert.True(t, v.Speech)
		assert.Equal(t, 64, b.Buffered())
		assert.Equal(t, 1, model.InferCallCount())
	})

	t.Run("every complete window is scored and the max wins", func(t *testing.T) {
		model := mock.NewModelWithSequence(0.2, 0.7, 0.1)
		b, err := vad.NewBufferedBackend(model, 0.5, 256, 4096)
		require.NoError(t, err)

		v, err := b.Classify(frameOf(768))
		require.NoError(t, err)
		assert.Equal(t, 3, model.InferCallCount())
		assert.True(t, v.Speech)
		assert.InDelta(t, 0.7, v.Confidence, 1e-6)
		assert.Equal(t, 0, b.Buffered())
	})

	t.Run("windows have the configured size", func(t *testing.T) {
		model := mock.NewModelWithProb(0.1)
		b, err := vad.NewBufferedBackend(model, 0.5, 256, 4096)
		require.NoError(t, err)

		_, err = b.Classify(frameOf(600))
		require.NoError(t, err)
		require.Len(t, model.InferCalls, 2)
		for _, call := range model.InferCalls {
			assert.Len(t, call, 256)
		}
	})

	t.Run("oldest samples are trimmed beyond the cap", func(t *testing.T) {
		model := &mock.Model{InferFunc: func(samples []float32) (float32, error) {
			// the window must come from the newest samples
			if samples[0] > 0 {
				return 0.9, nil
			}
			return 0.1, nil
		}}
		b, err := vad.NewBufferedBackend(model, 0.5, 256, 256)
		require.NoError(t, err)

		samples := make([]int16, 300)
		for i := 44; i < 300; i++ {
			samples[i] = 1000
		}
		v, err := b.Classify(frameOfSamples(samples))
		require.NoError(t, err)
		assert.Equal(t, 1, model.InferCallCount())
		assert.True(t, v.Speech)
	})

	t.Run("model error", func(t *testing.T) {
		boom := errors.New("model failed")
		model := &mock.Model{InferFunc: func([]float32) (float32, error) { return 0, boom }}
		b, err := vad.NewBufferedBackend(model, 0.5, 256, 1024)
		require.NoError(t, err)

		_, err = b.Classify(frameOf(256))
		var be *vad.BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "buffered-probability", be.Backend)
	})

	t.Run("reset drops buffered samples", func(t *testing.T) {
		model := mock.NewModelWithProb(0.9)
		b, err := vad.NewBufferedBackend(model, 0.5, 256, 1024)
		require.NoError(t, err)

		_, err = b.Classify(frameOf(200))
		require.NoError(t, err)
		require.NoError(t, b.Reset())
		assert.Equal(t, 0, b.Buffered())
		assert.True(t, model.ResetCalled)
	})

	t.Run("invalid construction", func(t *testing.T) {
		model := mock.NewModelWithProb(0)
		_, err := vad.NewBufferedBackend(model, 0.5, 0, 1024)
		assert.Error(t, err)
		_, err = vad.NewBufferedBackend(model, 0.5, 512, 256)
		assert.Error(t, err)
		_, err = vad.NewBufferedBackend(model, -1, 256, 1024)
		assert.Error(t, err)
	})
}
