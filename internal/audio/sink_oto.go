//go:build !headless

package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoCtx      *oto.Context
	otoFormat   Format
	otoInitOnce sync.Once
	otoInitErr  error
)

func ensureOtoContext(format Format, bufferMs int) (*oto.Context, error) {
	otoInitOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(bufferMs) * time.Millisecond,
		}
		var ready chan struct{}
		otoCtx, ready, otoInitErr = oto.NewContext(op)
		if otoInitErr != nil {
			return
		}
		<-ready
		otoFormat = format
	})
	if otoInitErr != nil {
		return nil, otoInitErr
	}
	if otoFormat.SampleRate != format.SampleRate || otoFormat.Channels != format.Channels {
		return nil, fmt.Errorf("audio context already open at %d Hz %d ch", otoFormat.SampleRate, otoFormat.Channels)
	}
	return otoCtx, nil
}

// DeviceSink plays blocks on the system's default output through oto.
type DeviceSink struct {
	player *oto.Player
	ring   *RingBuffer
	bytes  []byte
}

// NewDeviceSink opens the default output device as float32 at format.
func NewDeviceSink(format Format, bufferMs int, logger *log.Logger) (Sink, error) {
	ctx, err := ensureOtoContext(format, bufferMs)
	if err != nil {
		return nil, fmt.Errorf("oto audio not available: %w", err)
	}

	// One second of headroom; the scheduler keeps the real depth far lower.
	ring := NewRingBuffer(format.SampleRate * format.Channels * bytesPerSample)
	player := ctx.NewPlayer(ring)
	player.SetBufferSize(max(1, bufferMs) * format.SampleRate / 1000 * format.Channels * bytesPerSample)
	player.Play()

	if logger != nil {
		logger.Info("audio device open", "rate", format.SampleRate, "channels", format.Channels, "format", "float32", "bufferMs", bufferMs)
	}

	return &DeviceSink{player: player, ring: ring}, nil
}

// Write queues samples for playback.
func (d *DeviceSink) Write(samples []float32) error {
	need := len(samples) * bytesPerSample
	if cap(d.bytes) < need {
		d.bytes = make([]byte, need)
	}
	b := d.bytes[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*bytesPerSample:], math.Float32bits(s))
	}
	_, err := d.ring.Write(b)
	if err != nil {
		return err
	}
	if perr := d.player.Err(); perr != nil {
		return fmt.Errorf("audio player: %w", perr)
	}
	return nil
}

// Buffered counts bytes in the ring plus bytes inside oto's own buffer.
func (d *DeviceSink) Buffered() int {
	return d.ring.Buffered() + d.player.BufferedSize()
}

// Close stops playback. As of oto v3.4 players need no explicit close.
func (d *DeviceSink) Close() error {
	d.player.Pause()
	return d.ring.Close()
}
