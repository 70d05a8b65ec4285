//go:build headless

package audio

import "github.com/charmbracelet/log"

// NewDeviceSink has no device to open in headless builds and returns a sink
// that drains at real time instead.
func NewDeviceSink(format Format, bufferMs int, logger *log.Logger) (Sink, error) {
	if logger != nil {
		logger.Warn("headless build, audio is discarded", "rate", format.SampleRate, "channels", format.Channels)
	}
	return NewClockedSink(format), nil
}
