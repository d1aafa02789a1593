package vad_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/speech-segmenter/internal/vad"
	"github.com/lexiqai/speech-segmenter/internal/vad/mock"
)

func classifyAll(t *testing.T, b vad.Backend, n int) []bool {
	t.Helper()
	out := make([]bool, 0, n)
	for i := 0; i < n; i++ {
		v, err := b.Classify(frameOf(320))
		require.NoError(t, err)
		out = append(out, v.Speech)
	}
	return out
}

func TestSmoothedFlagBackend(t *testing.T) {
	t.Run("strict majority over the window", func(t *testing.T) {
		det := mock.NewFlagDetectorWithSequence(true, true, false, false, true, true, false, false, false, false)
		b, err := vad.NewSmoothedFlagBackend(det, 5)
		require.NoError(t, err)

		// windows: [T] [TT] [TTF] [TTFF] [TTFFT] [TFFTT] [FFTTF] [FTTFF] [TTFFF] [TFFFF]
		got := classifyAll(t, b, 10)
		assert.Equal(t, []bool{true, true, true, false, true, true, false, false, false, false}, got)
	})

	t.Run("a single spike is smoothed out", func(t *testing.T) {
		det := mock.NewFlagDetectorWithSequence(false, false, true, false, false)
		b, err := vad.NewSmoothedFlagBackend(det, 5)
		require.NoError(t, err)

		for _, speech := range classifyAll(t, b, 5) {
			assert.False(t, speech)
		}
	})

	t.Run("half the votes is not a majority", func(t *testing.T) {
		det := mock.NewFlagDetectorWithSequence(true, false)
		b, err := vad.NewSmoothedFlagBackend(det, 4)
		require.NoError(t, err)

		got := classifyAll(t, b, 4)
		assert.Equal(t, []bool{true, false, true, false}, got)
	})

	t.Run("confidence is the vote share", func(t *testing.T) {
		det := mock.NewFlagDetectorWithSequence(true, true, false, false)
		b, err := vad.NewSmoothedFlagBackend(det, 4)
		require.NoError(t, err)

		var v vad.Verdict
		for i := 0; i < 4; i++ {
			v, err = b.Classify(frameOf(320))
			require.NoError(t, err)
		}
		assert.InDelta(t, 0.5, v.Confidence, 1e-9)
	})

	t.Run("detector error votes non-speech", func(t *testing.T) {
		boom := errors.New("detector failed")
		calls := 0
		det := &mock.FlagDetector{IsSpeechFunc: func([]int16, int) (bool, error) {
			calls++
			if calls == 3 {
				return false, boom
			}
			return true, nil
		}}
		b, err := vad.NewSmoothedFlagBackend(det, 3)
		require.NoError(t, err)

		classifyAll(t, b, 2)
		_, err = b.Classify(frameOf(320))
		var be *vad.BackendError
		require.ErrorAs(t, err, &be)
		assert.ErrorIs(t, err, boom)

		// history is now [T T F]; one more true keeps the majority
		v, err := b.Classify(frameOf(320))
		require.NoError(t, err)
		assert.True(t, v.Speech)
		assert.InDelta(t, 2.0/3.0, v.Confidence, 1e-9)
	})

	t.Run("reset clears history", func(t *testing.T) {
		det := mock.NewFlagDetectorWithSequence(true, true, true, false)
		b, err := vad.NewSmoothedFlagBackend(det, 5)
		require.NoError(t, err)

		classifyAll(t, b, 3)
		require.NoError(t, b.Reset())
		assert.True(t, det.ResetCalled)

		v, err := b.Classify(frameOf(320))
		require.NoError(t, err)
		assert.False(t, v.Speech)
		assert.Equal(t, 0.0, v.Confidence)
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := vad.NewSmoothedFlagBackend(mock.NewFlagDetectorWithSequence(true), 0)
		assert.Error(t, err)
		_, err = vad.NewSmoothedFlagBackend(nil, 5)
		assert.Error(t, err)
	})
}
