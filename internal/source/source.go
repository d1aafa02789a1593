// Package source provides the frame sources a recorder session reads from:
// a local microphone, an audio file and a Twilio Media Streams connection.
package source

import (
	"context"
	"errors"

	"github.com/lexiqai/speech-segmenter/internal/audio"
)

var (
	// ErrNotOpen is returned by ReadFrame before Open succeeded
	ErrNotOpen = errors.New("source: not open")
	// ErrClosed is returned by ReadFrame after Close
	ErrClosed = errors.New("source: closed")
)

// Source supplies fixed-size mono 16-bit frames at the configured rate.
//
// ReadFrame blocks until a frame is available. It returns io.EOF at the end
// of the stream and ctx.Err() when ctx is done first, so a per-read deadline
// on ctx acts as the read timeout. Any other error is a source failure.
type Source interface {
	// Name identifies the source kind in logs and metrics
	Name() string
	Open(ctx context.Context) error
	ReadFrame(ctx context.Context) (audio.Frame, error)
	Close() error
}
