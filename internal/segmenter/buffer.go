package segmenter

import (
	"time"

	"github.com/lexiqai/speech-segmenter/internal/audio"
)

// Buffer accumulates the frames of the segment in progress. Frames are copied
// on append so callers may reuse their sample slices.
type Buffer struct {
	frames  []audio.Frame
	samples int
}

// Append copies the frame into the buffer
func (b *Buffer) Append(f audio.Frame) {
	b.frames = append(b.frames, f.Clone())
	b.samples += f.Len()
}

// Clear drops all frames
func (b *Buffer) Clear() {
	b.frames = nil
	b.samples = 0
}

// Take returns the buffered frames and empties the buffer. The buffer keeps
// no reference to the returned slice.
func (b *Buffer) Take() []audio.Frame {
	frames := b.frames
	b.Clear()
	return frames
}

// Frames returns the buffered frames without copying
func (b *Buffer) Frames() []audio.Frame {
	return b.frames
}

// Len returns the number of buffered frames
func (b *Buffer) Len() int {
	return len(b.frames)
}

// NumSamples returns the total number of buffered samples
func (b *Buffer) NumSamples() int {
	return b.samples
}

// Duration returns the amount of audio held
func (b *Buffer) Duration() time.Duration {
	if len(b.frames) == 0 {
		return 0
	}
	return audio.SamplesDuration(b.samples, b.frames[0].SampleRate)
}
