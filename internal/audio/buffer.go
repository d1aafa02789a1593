package audio

import (
	"sync"
)

// RingBuffer is a thread-safe FIFO of PCM samples. Capture callbacks write
// into it at whatever period the device delivers, and readers pull out
// fixed-size frames.
type RingBuffer struct {
	buffer []int16
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a ring buffer that holds up to capacity samples
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		// one slot stays free to tell full from empty
		buffer: make([]int16, capacity+1),
		size:   capacity + 1,
	}
}

// Write appends samples to the buffer.
// Returns the number of samples written (may be less than len(samples) if the buffer is full)
func (rb *RingBuffer) Write(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for _, s := range samples {
		if (rb.write+1)%rb.size == rb.read {
			break
		}
		rb.buffer[rb.write] = s
		rb.write = (rb.write + 1) % rb.size
		written++
	}

	return written
}

// Push appends samples, discarding the oldest buffered samples when there is
// not enough room. Returns the number of samples discarded.
func (rb *RingBuffer) Push(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	dropped := 0
	for _, s := range samples {
		if (rb.write+1)%rb.size == rb.read {
			rb.read = (rb.read + 1) % rb.size
			dropped++
		}
		rb.buffer[rb.write] = s
		rb.write = (rb.write + 1) % rb.size
	}

	return dropped
}

// Read reads samples from the buffer.
// Returns the number of samples read
func (rb *RingBuffer) Read(dst []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := range dst {
		if rb.read == rb.write {
			break
		}
		dst[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
		read++
	}

	return read
}

// ReadFull reads exactly len(dst) samples, or nothing if fewer are buffered.
func (rb *RingBuffer) ReadFull(dst []int16) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.available() < len(dst) {
		return false
	}
	for i := range dst {
		dst[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
	}
	return true
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.available()
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// Space returns the number of samples that can be written before the buffer is full
func (rb *RingBuffer) Space() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size - rb.available() - 1
}

// Capacity returns the maximum number of buffered samples
func (rb *RingBuffer) Capacity() int {
	return rb.size - 1
}

// Clear clears the buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
}

// IsEmpty returns true if the buffer is empty
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}

// IsFull returns true if the buffer is full
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return (rb.write+1)%rb.size == rb.read
}
