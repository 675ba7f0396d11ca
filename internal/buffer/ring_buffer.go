// Package buffer provides a bounded backlog for terminal output.
package buffer

import "sync"

// RingBuffer is a thread-safe byte buffer that retains only the most recent
// data up to a fixed capacity; older bytes are discarded as new ones arrive.
// The rendered-mode helper uses it as the screen backlog that view requests
// snapshot.
type RingBuffer struct {
	data     []byte
	capacity int
	mu       sync.RWMutex
}

// NewRingBuffer creates a RingBuffer with the given capacity (minimum 1).
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		data:     make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Write appends p, discarding the oldest bytes if the buffer would overflow.
// It implements io.Writer and never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(p) >= rb.capacity {
		rb.data = append(rb.data[:0], p[len(p)-rb.capacity:]...)
		return len(p), nil
	}

	if overflow := len(rb.data) + len(p) - rb.capacity; overflow > 0 {
		rb.data = append(rb.data[:0], rb.data[overflow:]...)
	}
	rb.data = append(rb.data, p...)
	return len(p), nil
}

// Snapshot returns a copy of the buffered bytes.
func (rb *RingBuffer) Snapshot() []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if len(rb.data) == 0 {
		return nil
	}
	out := make([]byte, len(rb.data))
	copy(out, rb.data)
	return out
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.data)
}

// Cap returns the buffer capacity.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}
