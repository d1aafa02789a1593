package segmenter

import (
	"time"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/config"
)

// Policy holds the timing rules of a Machine. All thresholds are exclusive
// lower bounds. A zero MinSilence and MinSpeech end a segment on the first
// non-speech frame.
type Policy struct {
	MinSpeech  time.Duration
	MinSilence time.Duration
	// NoSpeechTimeout ends a session that never heard speech. Zero disables it.
	NoSpeechTimeout time.Duration
	// PreRollFrames is the number of frames before speech start prepended to
	// each segment
	PreRollFrames int
}

// PolicyFromConfig extracts the segmentation policy from cfg
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		MinSpeech:       cfg.MinSpeechDuration,
		MinSilence:      cfg.MinSilenceDuration,
		NoSpeechTimeout: cfg.NoSpeechTimeout,
		PreRollFrames:   cfg.PreRollFrames,
	}
}

// Machine is the segmentation state machine. Time is the stream clock: a
// frame's timestamp is its Offset and the clock reads the end of the last
// frame fed. The session starts at stream position zero. A Machine is owned
// by a single goroutine.
type Machine struct {
	policy Policy
	state  State

	buf     Buffer
	preRoll *audio.PreRoll
	lead    []audio.Frame

	now              time.Duration
	speechStartedAt  time.Duration
	silenceStartedAt time.Duration
	silenceStarted   bool
	spoke            bool
	seq              int
}

// NewMachine creates a machine in the Idle state
func NewMachine(p Policy) *Machine {
	if p.MinSpeech < 0 {
		p.MinSpeech = 0
	}
	if p.MinSilence < 0 {
		p.MinSilence = 0
	}
	if p.NoSpeechTimeout < 0 {
		p.NoSpeechTimeout = 0
	}
	return &Machine{
		policy:  p,
		preRoll: audio.NewPreRoll(p.PreRollFrames),
	}
}

// Feed advances the machine by one classified frame. A segment is returned
// only with EventSegmentEnd.
func (m *Machine) Feed(f audio.Frame, speech bool) (Event, *Segment) {
	if end := f.End(); end > m.now {
		m.now = end
	}

	if m.state == Idle {
		if speech {
			m.startSpeech(f)
			return EventSpeechStart, nil
		}
		m.preRoll.Add(f)
		if m.watchdogExpired() {
			return EventTimeout, nil
		}
		return EventNone, nil
	}

	// trailing silence is kept so word endings are not clipped
	m.buf.Append(f)
	if speech {
		m.silenceStarted = false
		return EventNone, nil
	}
	if !m.silenceStarted {
		m.silenceStarted = true
		m.silenceStartedAt = f.Offset
	}
	if m.endReached() {
		return EventSegmentEnd, m.finalize()
	}
	return EventNone, nil
}

// Tick advances the clock to now without a frame, as when a read times out.
// The gap counts as silence while Speaking.
func (m *Machine) Tick(now time.Duration) (Event, *Segment) {
	if now <= m.now {
		return EventNone, nil
	}
	gapStart := m.now
	m.now = now

	if m.state == Idle {
		if m.watchdogExpired() {
			return EventTimeout, nil
		}
		return EventNone, nil
	}

	if !m.silenceStarted {
		m.silenceStarted = true
		m.silenceStartedAt = gapStart
	}
	if m.endReached() {
		return EventSegmentEnd, m.finalize()
	}
	return EventNone, nil
}

// Flush finalizes the segment in progress regardless of the duration
// thresholds. It returns nil when there is nothing to flush.
func (m *Machine) Flush() *Segment {
	if m.state != Speaking || m.buf.Len() == 0 {
		return nil
	}
	return m.finalize()
}

// Discard drops the segment in progress and returns to Idle
func (m *Machine) Discard() {
	m.buf.Clear()
	m.lead = nil
	m.toIdle()
}

// Reset returns the machine to its initial state for a new session
func (m *Machine) Reset() {
	m.Discard()
	m.preRoll.Clear()
	m.now = 0
	m.spoke = false
	m.seq = 0
}

func (m *Machine) startSpeech(f audio.Frame) {
	m.state = Speaking
	m.spoke = true
	m.speechStartedAt = f.Offset
	m.silenceStarted = false

	m.lead = m.preRoll.Frames()
	m.preRoll.Clear()

	m.buf.Clear()
	m.buf.Append(f)
}

func (m *Machine) endReached() bool {
	return m.silenceStarted &&
		m.now-m.silenceStartedAt > m.policy.MinSilence &&
		m.now-m.speechStartedAt > m.policy.MinSpeech
}

func (m *Machine) watchdogExpired() bool {
	return !m.spoke && m.policy.NoSpeechTimeout > 0 && m.now > m.policy.NoSpeechTimeout
}

func (m *Machine) finalize() *Segment {
	frames := m.buf.Take()
	if len(m.lead) > 0 {
		frames = append(m.lead, frames...)
	}
	m.lead = nil
	m.seq++
	m.toIdle()
	return newSegment(m.seq, frames)
}

func (m *Machine) toIdle() {
	m.state = Idle
	m.speechStartedAt = 0
	m.silenceStartedAt = 0
	m.silenceStarted = false
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Now returns the stream clock
func (m *Machine) Now() time.Duration {
	return m.now
}

// SpeechStartedAt returns when the segment in progress started
func (m *Machine) SpeechStartedAt() (time.Duration, bool) {
	return m.speechStartedAt, m.state == Speaking
}

// SilenceStartedAt returns when the current run of non-speech started, if
// the machine is Speaking and the last verdict was non-speech
func (m *Machine) SilenceStartedAt() (time.Duration, bool) {
	return m.silenceStartedAt, m.silenceStarted
}

// Buffered returns the number of frames in the segment buffer
func (m *Machine) Buffered() int {
	return m.buf.Len()
}

// BufferedDuration returns the audio held in the segment buffer. It tracks
// Now minus SpeechStartedAt to within one frame, except that gaps passed to
// Tick while Speaking advance Now without adding audio.
func (m *Machine) BufferedDuration() time.Duration {
	return m.buf.Duration()
}

// SpeechDetected reports whether any speech was seen this session
func (m *Machine) SpeechDetected() bool {
	return m.spoke
}
