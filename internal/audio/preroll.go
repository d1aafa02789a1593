package audio

// PreRoll keeps the most recent frames seen before speech starts so they can
// be prepended to a segment. It is owned by a single goroutine.
type PreRoll struct {
	frames   []Frame
	capacity int
	next     int
	count    int
}

// NewPreRoll creates a pre-roll holding up to capacity frames.
// A capacity of zero disables it.
func NewPreRoll(capacity int) *PreRoll {
	if capacity < 0 {
		capacity = 0
	}
	return &PreRoll{
		frames:   make([]Frame, capacity),
		capacity: capacity,
	}
}

// Add stores a copy of the frame, overwriting the oldest one when full.
func (p *PreRoll) Add(f Frame) {
	if p.capacity == 0 {
		return
	}
	p.frames[p.next] = f.Clone()
	p.next = (p.next + 1) % p.capacity
	if p.count < p.capacity {
		p.count++
	}
}

// Frames returns the stored frames oldest first.
func (p *PreRoll) Frames() []Frame {
	if p.count == 0 {
		return nil
	}
	out := make([]Frame, 0, p.count)
	start := (p.next - p.count + p.capacity) % p.capacity
	for i := 0; i < p.count; i++ {
		out = append(out, p.frames[(start+i)%p.capacity])
	}
	return out
}

// Len returns the number of stored frames
func (p *PreRoll) Len() int {
	return p.count
}

// Clear drops all stored frames
func (p *PreRoll) Clear() {
	for i := range p.frames {
		p.frames[i] = Frame{}
	}
	p.next = 0
	p.count = 0
}
