package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/observability"
)

const (
	micPeriodMs = 20
	// seconds of capture held while the worker is busy
	micBufferSeconds = 2
)

// MicSource captures mono 16-bit audio from the default input device.
type MicSource struct {
	sampleRate int
	frameSize  int
	logger     zerolog.Logger

	mu     sync.Mutex
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	stream *stream
}

// NewMicSource creates a microphone source. The device is opened by Open.
func NewMicSource(sampleRate, frameSize int) *MicSource {
	return &MicSource{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		logger:     observability.WithComponent("mic"),
	}
}

func (m *MicSource) Name() string { return "mic" }

// Open initializes the audio context and starts capturing. Failures leave
// nothing allocated, so Open can be retried.
func (m *MicSource) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		m.logger.Debug().Str("miniaudio", message).Msg("audio backend")
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}

	st := newStream(m.Name(), m.sampleRate, m.frameSize, m.sampleRate*micBufferSeconds)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = micPeriodMs
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.onData(st, input)
		},
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	m.mctx, m.device, m.stream = mctx, device, st
	m.logger.Info().Int("sample_rate", m.sampleRate).Int("frame_size", m.frameSize).Msg("capture started")
	return nil
}

// onData runs on the audio thread
func (m *MicSource) onData(st *stream, input []byte) {
	observability.RecordAudioBytes(m.Name(), len(input))

	samples, err := audio.BytesToSamples(input[:len(input)&^1])
	if err != nil {
		return
	}
	st.write(samples)
}

// ReadFrame blocks until a full frame was captured
func (m *MicSource) ReadFrame(ctx context.Context) (audio.Frame, error) {
	m.mu.Lock()
	st := m.stream
	m.mu.Unlock()

	if st == nil {
		return audio.Frame{}, ErrNotOpen
	}
	return st.next(ctx)
}

// Close stops capture and releases the device. It is safe to call more than
// once.
func (m *MicSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return nil
	}

	err := m.device.Stop()
	m.device.Uninit()
	if uerr := m.mctx.Uninit(); err == nil {
		err = uerr
	}
	m.mctx.Free()
	m.stream.finish(ErrClosed)

	m.device, m.mctx = nil, nil
	m.logger.Info().Msg("capture stopped")
	if err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}
