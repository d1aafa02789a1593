package audio

import (
	"time"
)

// Frame is a fixed-size block of mono 16-bit PCM samples.
// Offset is the stream position of the first sample, measured from the
// start of the session.
type Frame struct {
	Samples    []int16
	SampleRate int
	Offset     time.Duration
}

// NewFrame creates a frame. The samples slice is not copied.
func NewFrame(samples []int16, sampleRate int, offset time.Duration) Frame {
	return Frame{
		Samples:    samples,
		SampleRate: sampleRate,
		Offset:     offset,
	}
}

// Len returns the number of samples in the frame
func (f Frame) Len() int {
	return len(f.Samples)
}

// Duration returns how much audio the frame covers
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// End returns the stream position just past the last sample
func (f Frame) End() time.Duration {
	return f.Offset + f.Duration()
}

// Clone returns a frame with its own copy of the samples
func (f Frame) Clone() Frame {
	samples := make([]int16, len(f.Samples))
	copy(samples, f.Samples)
	f.Samples = samples
	return f
}

// Float32 returns the samples normalized to [-1, 1]
func (f Frame) Float32() []float32 {
	return SamplesToFloat32(f.Samples)
}

// Bytes returns the samples as little-endian PCM bytes
func (f Frame) Bytes() []byte {
	return SamplesToBytes(f.Samples)
}

// SamplesDuration converts a sample count at the given rate into a duration.
func SamplesDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// DurationSamples converts a duration into a sample count at the given rate,
// rounding down.
func DurationSamples(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(d * time.Duration(sampleRate) / time.Second)
}
