package audio

import (
	"errors"
	"io"
	"sync"
)

// ErrSinkClosed is returned when writing to a closed sink.
var ErrSinkClosed = errors.New("audio: sink closed")

// RingBuffer is the byte FIFO between the render loop and the device's pull
// callback. Read blocks until data arrives; Write never blocks and drops the
// oldest bytes when full so a stalled device can't stall rendering.
type RingBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	head   int
	size   int
	closed bool
}

// NewRingBuffer allocates a ring holding up to capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	rb := &RingBuffer{buf: make([]byte, capacity)}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Write appends p, discarding the oldest bytes on overflow.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return 0, ErrSinkClosed
	}
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	capacity := len(rb.buf)
	if n > capacity {
		p = p[n-capacity:]
	}
	if over := rb.size + len(p) - capacity; over > 0 {
		rb.head = (rb.head + over) % capacity
		rb.size -= over
	}

	tail := (rb.head + rb.size) % capacity
	c := copy(rb.buf[tail:], p)
	copy(rb.buf, p[c:])
	rb.size += len(p)

	rb.cond.Signal()
	return n, nil
}

// Read implements io.Reader for the device callback. It returns io.EOF once
// the ring is closed and drained.
func (rb *RingBuffer) Read(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.size == 0 {
		if rb.closed {
			return 0, io.EOF
		}
		rb.cond.Wait()
	}

	n := min(len(p), rb.size)
	c := copy(p[:n], rb.buf[rb.head:])
	copy(p[c:n], rb.buf)
	rb.head = (rb.head + n) % len(rb.buf)
	rb.size -= n
	return n, nil
}

// Buffered returns the bytes waiting to be read.
func (rb *RingBuffer) Buffered() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Close wakes any blocked reader.
func (rb *RingBuffer) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast()
	return nil
}
