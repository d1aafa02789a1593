package segmenter

import (
	"time"

	"github.com/lexiqai/speech-segmenter/internal/audio"
)

// Segment is one finished utterance. Once handed to a callback the engine
// keeps no reference to it.
type Segment struct {
	// Seq numbers the segments of a session from 1
	Seq       int
	SessionID string

	Frames     []audio.Frame
	SampleRate int
	// Start is the stream position of the first frame, End the position just
	// past the last one
	Start time.Duration
	End   time.Duration

	// Path is the WAV copy of the segment when segment saving is enabled.
	// The file is removed by the session's Cleanup.
	Path string
}

func newSegment(seq int, frames []audio.Frame) *Segment {
	seg := &Segment{Seq: seq, Frames: frames}
	if len(frames) > 0 {
		seg.SampleRate = frames[0].SampleRate
		seg.Start = frames[0].Offset
		seg.End = frames[len(frames)-1].End()
	}
	return seg
}

// NumSamples returns the total number of samples across all frames
func (s *Segment) NumSamples() int {
	n := 0
	for _, f := range s.Frames {
		n += f.Len()
	}
	return n
}

// Samples returns the segment audio as one contiguous slice
func (s *Segment) Samples() []int16 {
	out := make([]int16, 0, s.NumSamples())
	for _, f := range s.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Duration returns the audio length of the segment
func (s *Segment) Duration() time.Duration {
	return audio.SamplesDuration(s.NumSamples(), s.SampleRate)
}

// WAV encodes the segment as a 16-bit mono WAV file
func (s *Segment) WAV() []byte {
	return audio.EncodeWAV(s.Samples(), s.SampleRate)
}
