// Package audio provides haptic synthesis and the render loop that feeds the
// output device.
package audio

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/icco/hapticd/internal/config"
	"github.com/icco/hapticd/internal/packet"
)

// DefaultSeed seeds the voice noise generator when Format.Seed is zero.
const DefaultSeed = 12345

// Format describes the interleaved float output.
type Format struct {
	SampleRate int
	Channels   int
	Seed       uint64
}

// FormatFromConfig returns the output format described by engine.json.
func FormatFromConfig(cfg config.Engine) Format {
	return Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
}

// Synth mixes haptic voices and the wind layer into interleaved blocks.
//
// Commands (TriggerVoice, EnableWind, DisableWind, SetTelemetry) may be called
// from any goroutine. RenderInterleaved must only be called from one goroutine.
type Synth struct {
	format Format

	mu     sync.Mutex
	voices []Voice
	// next is the first sample not yet covered by a render snapshot. It runs
	// ahead of clock while a block is being rendered.
	next int64

	clock     atomic.Int64
	wind      atomic.Pointer[WindState]
	telemetry atomic.Pointer[packet.Telemetry]

	// Render goroutine only.
	rng      *rand.Rand
	windOsc  windOsc
	snapshot []Voice
}

// New creates a synth for the given format.
func New(format Format) *Synth {
	seed := format.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	s := &Synth{
		format: format,
		rng:    rand.New(rand.NewPCG(seed, 0)),
	}
	s.wind.Store(&WindState{Bus: "movement"})
	s.telemetry.Store(&packet.Telemetry{})
	return s
}

// Format returns the synth's output format.
func (s *Synth) Format() Format {
	return s.format
}

// SetTelemetry replaces the latest telemetry sample.
func (s *Synth) SetTelemetry(t packet.Telemetry) {
	s.telemetry.Store(&t)
}

// Telemetry returns the latest telemetry sample.
func (s *Synth) Telemetry() packet.Telemetry {
	return *s.telemetry.Load()
}

// Clock returns the absolute sample index of the next frame to be rendered.
func (s *Synth) Clock() int64 {
	return s.clock.Load()
}

// ActiveVoices returns how many voices are waiting to play or playing.
func (s *Synth) ActiveVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// Wind returns the current wind state.
func (s *Synth) Wind() WindState {
	return *s.wind.Load()
}

// TriggerVoice schedules a voice for a haptic packet. The voice starts at the
// first sample not yet rendered plus the global and packet delays. The resolved voice
// is returned for logging.
func (s *Synth) TriggerVoice(effect config.Effect, p packet.Haptic, busGain, masterGain float64, globalDelayMs int) Voice {
	rate := float64(s.format.SampleRate)
	delayMs := max(0, globalDelayMs+p.DelayMs)

	v := Voice{
		Key:             p.Key,
		StartSample:     int64(math.Round(float64(delayMs) / 1000 * rate)),
		DurationSamples: max(1, int64(math.Round(float64(p.Ms)/1000*rate))),
		F0:              p.F0,
		F1:              p.F1,
		Gain:            p.Gain * effect.Gain * busGain * masterGain,
		NoiseMix:        p.Noise,
		PulsePeriodMs:   p.PulsePeriodMs,
		PulseWidthMs:    p.PulseWidthMs,
		Pan:             ResolvePan(effect.Routing, p.AzimuthDeg, p.DirectionBand),
		Priority:        p.Priority,
	}

	s.mu.Lock()
	v.StartSample += s.next
	s.voices = append(s.voices, v)
	s.mu.Unlock()
	return v
}

// EnableWind turns the wind layer on with the event's resolved gain and pan.
func (s *Synth) EnableWind(effect config.Effect, e packet.Event, busGain, masterGain float64) {
	s.wind.Store(&WindState{
		Enabled: true,
		Gain:    e.Intensity * effect.Gain * busGain * masterGain,
		Pan:     ResolvePan(effect.Routing, e.AzimuthDeg, e.DirectionBand),
		Bus:     effect.Bus,
	})
}

// DisableWind silences the wind layer, keeping its last gain and pan.
func (s *Synth) DisableWind() {
	for {
		cur := s.wind.Load()
		if !cur.Enabled {
			return
		}
		next := *cur
		next.Enabled = false
		if s.wind.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// RenderInterleaved fills buf with len(buf)/channels frames and advances the
// sample clock by that many frames.
func (s *Synth) RenderInterleaved(buf []float32) {
	channels := s.format.Channels
	rate := s.format.SampleRate
	frames := len(buf) / channels
	start := s.beginBlock(frames)

	wind := newWindParams(*s.wind.Load(), *s.telemetry.Load())

	for i := 0; i < frames; i++ {
		idx := start + int64(i)
		var l, r float64

		for _, v := range s.snapshot {
			vl, vr, ok := v.Sample(idx, rate, s.rng)
			if !ok {
				continue
			}
			l += vl
			r += vr
		}

		if wind.gain > 0 {
			wl, wr := ApplyPan(s.windOsc.next(wind, rate)*wind.gain, wind.pan)
			l += wl
			r += wr
		}

		l = clampSample(l)
		r = clampSample(r)
		base := i * channels
		if channels == 2 {
			buf[base] = float32(l)
			buf[base+1] = float32(r)
		} else {
			buf[base] = float32(0.5 * (l + r))
		}
	}

	clear(buf[frames*channels:])

	now := s.clock.Add(int64(frames))
	s.dropFinished(now)
}

// beginBlock snapshots the voices for the block of frames starting at the
// clock. Voices triggered after this point start at the following block.
func (s *Synth) beginBlock(frames int) int64 {
	start := s.clock.Load()
	s.mu.Lock()
	s.snapshot = append(s.snapshot[:0], s.voices...)
	s.next = start + int64(frames)
	s.mu.Unlock()
	return start
}

// clampSample limits a mixed sample to [-1, 1] and silences NaN.
func clampSample(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return clamp(x, -1, 1)
}

func (s *Synth) dropFinished(now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voices = slices.DeleteFunc(s.voices, func(v Voice) bool {
		return v.Finished(now)
	})
}
