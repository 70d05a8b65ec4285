package audio

import (
	"sync"
	"time"
)

// bytesPerSample is the size of one float32 sample on the wire.
const bytesPerSample = 4

// Sink is where rendered blocks go. Buffered reports the bytes queued but not
// yet played, which is what the scheduler paces itself on.
type Sink interface {
	Write(samples []float32) error
	Buffered() int
	Close() error
}

// ClockedSink discards audio but drains at real time, as a device would.
// It stands in for the device with --null-output and in headless builds.
type ClockedSink struct {
	bytesPerSecond float64
	now            func() time.Time

	mu     sync.Mutex
	queued float64
	last   time.Time
	writes int
	closed bool
}

// NewClockedSink returns a sink draining format's byte rate.
func NewClockedSink(format Format) *ClockedSink {
	return newClockedSink(format, time.Now)
}

func newClockedSink(format Format, now func() time.Time) *ClockedSink {
	return &ClockedSink{
		bytesPerSecond: float64(format.SampleRate * format.Channels * bytesPerSample),
		now:            now,
		last:           now(),
	}
}

func (c *ClockedSink) drainLocked() {
	t := c.now()
	c.queued -= t.Sub(c.last).Seconds() * c.bytesPerSecond
	if c.queued < 0 {
		c.queued = 0
	}
	c.last = t
}

// Write queues samples.
func (c *ClockedSink) Write(samples []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSinkClosed
	}
	c.drainLocked()
	c.queued += float64(len(samples) * bytesPerSample)
	c.writes++
	return nil
}

// Buffered returns the bytes not yet drained.
func (c *ClockedSink) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainLocked()
	return int(c.queued)
}

// Writes returns how many blocks were written.
func (c *ClockedSink) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Close stops accepting writes.
func (c *ClockedSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
