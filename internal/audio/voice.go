package audio

import (
	"math"
	"math/rand/v2"
)

// fadeMs is the linear fade applied at both ends of every voice.
const fadeMs = 5

// Voice is one time-bounded haptic sound. Voices never change after they are
// created, so the render goroutine samples them without holding a lock.
type Voice struct {
	Key             string
	StartSample     int64
	DurationSamples int64
	F0              float64
	F1              float64
	Gain            float64
	NoiseMix        float64
	PulsePeriodMs   int
	PulseWidthMs    int
	Pan             float64
	Priority        int
}

// Finished reports whether the voice can be dropped at sample clock now.
func (v Voice) Finished(now int64) bool {
	return now > v.StartSample+v.DurationSamples+1
}

// Active reports whether index falls inside the voice's lifetime.
func (v Voice) Active(index int64) bool {
	rel := index - v.StartSample
	return rel >= 0 && rel < v.DurationSamples
}

// Freq returns the oscillator frequency at index, linearly swept from F0 to F1.
func (v Voice) Freq(index int64) float64 {
	u := 1.0
	if v.DurationSamples > 0 {
		u = clamp(float64(index-v.StartSample)/float64(v.DurationSamples), 0, 1)
	}
	return v.F0 + (v.F1-v.F0)*u
}

// Amplitude returns gain times envelope times pulse gate at index, without
// the oscillator. Zero outside the voice's lifetime.
func (v Voice) Amplitude(index int64, sampleRate int) float64 {
	if !v.Active(index) {
		return 0
	}
	rel := index - v.StartSample
	amp := v.Gain * envelope(rel, v.DurationSamples, sampleRate)

	if v.PulsePeriodMs > 0 && v.PulseWidthMs > 0 {
		ms := float64(rel) / float64(sampleRate) * 1000
		if math.Mod(ms, float64(v.PulsePeriodMs)) > float64(v.PulseWidthMs) {
			amp = 0
		}
	}
	return amp
}

// Sample renders the voice at an absolute sample index. ok is false when the
// voice has not started yet or has already ended. The phase is derived from
// elapsed time, so the same index always yields the same tone.
func (v Voice) Sample(index int64, sampleRate int, rng *rand.Rand) (l, r float64, ok bool) {
	if !v.Active(index) {
		return 0, 0, false
	}

	t := float64(index-v.StartSample) / float64(sampleRate)
	hz := v.Freq(index)
	sine := math.Sin(2 * math.Pi * hz * t)
	noise := rng.Float64()*2 - 1
	mix := clamp(v.NoiseMix, 0, 1)
	sig := (1-mix)*sine + mix*noise

	l, r = ApplyPan(sig*v.Amplitude(index, sampleRate), v.Pan)
	return l, r, true
}

func envelope(rel, dur int64, sampleRate int) float64 {
	fade := int64(fadeMs * sampleRate / 1000)
	if fade <= 1 {
		return 1
	}
	// Voices shorter than two fades take the nearer edge, so they still end at zero.
	if edge := min(rel, dur-rel); edge < fade {
		return clamp(float64(edge)/float64(fade), 0, 1)
	}
	return 1
}
