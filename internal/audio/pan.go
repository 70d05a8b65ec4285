package audio

import (
	"math"
	"strings"

	"github.com/icco/hapticd/internal/config"
)

// panGamma compresses the sin(azimuth) curve so small moves near center stay audible.
const panGamma = 0.75

// ResolvePan turns an effect routing plus optional direction into a pan in [-1, 1].
// Routings other than leftRightFromAzimuth are always centered. An explicit
// azimuth wins over the coarse direction band.
func ResolvePan(routing string, azimuthDeg *float64, band string) float64 {
	if !strings.EqualFold(routing, config.RoutingLeftRightFromAzimuth) {
		return 0
	}

	var az float64
	switch {
	case azimuthDeg != nil:
		az = *azimuthDeg
	default:
		deg, ok := bandAzimuth(band)
		if !ok {
			return 0
		}
		az = deg
	}

	pan := math.Sin(az * math.Pi / 180)
	shaped := math.Copysign(math.Pow(math.Abs(pan), panGamma), pan)
	return clamp(shaped, -1, 1)
}

func bandAzimuth(band string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(band)) {
	case "front":
		return 0, true
	case "right":
		return 90, true
	case "rear", "back":
		return 180, true
	case "left":
		return -90, true
	default:
		return 0, false
	}
}

// ApplyPan splits a mono sample with the constant-power pan law.
func ApplyPan(sample, pan float64) (l, r float64) {
	angle := (clamp(pan, -1, 1) + 1) * math.Pi / 4
	return math.Cos(angle) * sample, math.Sin(angle) * sample
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
