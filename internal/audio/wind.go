package audio

import (
	"math"
	"math/rand/v2"

	"github.com/icco/hapticd/internal/packet"
)

// WindState is the continuous ambient layer's settings. It is replaced as a
// whole, never edited in place.
type WindState struct {
	Enabled bool
	Gain    float64
	Pan     float64
	Bus     string
}

// windParams are the per-block wind settings derived from the latest telemetry.
type windParams struct {
	hz    float64
	noise float64
	gain  float64
	pan   float64
}

func newWindParams(w WindState, tel packet.Telemetry) windParams {
	p := windParams{
		hz:    22 + clamp(tel.Speed*0.6, 0, 28),
		noise: clamp(tel.Speed/30, 0, 1),
		pan:   w.Pan,
	}
	if w.Enabled {
		p.gain = w.Gain * clamp(tel.Speed/18, 0.05, 1.0)
	}
	return p
}

// windOsc keeps the wind phase running across blocks. Only the render
// goroutine touches it.
type windOsc struct {
	phase float64
}

func (o *windOsc) next(p windParams, sampleRate int) float64 {
	o.phase += 2 * math.Pi * p.hz / float64(sampleRate)
	if o.phase >= 2*math.Pi {
		o.phase = math.Mod(o.phase, 2*math.Pi)
	}
	noise := rand.Float64()*2 - 1
	return (1-p.noise)*math.Sin(o.phase) + p.noise*noise
}
