//go:build !silero

package vad_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lexiqai/speech-segmenter/internal/config"
	"github.com/lexiqai/speech-segmenter/internal/vad"
)

func TestNewBackend_SileroUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.Model = "silero"
	cfg.ModelPath = "silero_vad.onnx"

	_, err := vad.NewBackend(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "silero")
}
