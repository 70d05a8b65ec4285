// Package packet decodes inbound JSON lines into typed messages.
//
// Every line is a JSON object with a "type" field. Numeric fields may be sent
// as numbers or numeric strings; absent or malformed fields take their
// defaults instead of failing the whole message.
package packet

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalid is returned for input that is not a JSON object.
	ErrInvalid = errors.New("packet: not a json object")
	// ErrMissingKey is returned for a haptic message without a string key.
	ErrMissingKey = errors.New("packet: haptic message without key")
)

// Message types as they appear on the wire.
const (
	TypeTelemetry = "telemetry"
	TypeHaptic    = "haptic"
	TypeEvent     = "event"
)

// Message is one of Telemetry, Haptic, Event or Unknown.
type Message interface {
	Type() string
}

// Telemetry is the latest continuous motion sample.
type Telemetry struct {
	Speed        float64
	Accel        float64
	FlightActive bool
}

// Haptic asks for one synthesized voice.
type Haptic struct {
	Key           string
	F0            float64
	F1            float64
	Ms            int
	Gain          float64
	Noise         float64
	PulsePeriodMs int
	PulseWidthMs  int
	Priority      int
	DelayMs       int
	AzimuthDeg    *float64
	DirectionBand string
	Pattern       string
}

// Event is a high-level gameplay event.
type Event struct {
	ID            string
	Kind          string
	Intensity     float64
	AzimuthDeg    *float64
	DirectionBand string
}

// Unknown carries the type of a message nobody handles.
type Unknown struct {
	Name string
}

func (Telemetry) Type() string { return TypeTelemetry }
func (Haptic) Type() string    { return TypeHaptic }
func (Event) Type() string     { return TypeEvent }
func (u Unknown) Type() string { return u.Name }

// Decode parses one JSON line.
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalid
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, ErrInvalid
	}

	switch typ := str(root, "type"); typ {
	case TypeTelemetry:
		return decodeTelemetry(root), nil
	case TypeHaptic:
		return decodeHaptic(root)
	case TypeEvent:
		return decodeEvent(root), nil
	default:
		return Unknown{Name: typ}, nil
	}
}

// Timestamp returns the sender's wall clock time ("t", epoch milliseconds)
// of a line, if present.
func Timestamp(data []byte) (time.Time, bool) {
	t := gjson.GetBytes(data, "t")
	if t.Type != gjson.Number {
		return time.Time{}, false
	}
	return time.UnixMilli(t.Int()), true
}

func decodeTelemetry(root gjson.Result) Telemetry {
	flight, ok := boolean(root, "elytra")
	if !ok {
		flight, _ = boolean(root, "flightActive")
	}
	return Telemetry{
		Speed:        floatOr(root, "speed", 0),
		Accel:        floatOr(root, "accel", 0),
		FlightActive: flight,
	}
}

func decodeHaptic(root gjson.Result) (Haptic, error) {
	key := root.Get("key")
	if key.Type != gjson.String {
		return Haptic{}, ErrMissingKey
	}

	f0 := floatOr(root, "f0", 30)
	return Haptic{
		Key:           key.Str,
		F0:            f0,
		F1:            floatOr(root, "f1", f0),
		Ms:            intOr(root, "ms", 60),
		Gain:          floatOr(root, "gain", 1),
		Noise:         floatOr(root, "noise", 0),
		PulsePeriodMs: intOr(root, "pulsePeriodMs", 0),
		PulseWidthMs:  intOr(root, "pulseWidthMs", 0),
		Priority:      intOr(root, "priority", 0),
		DelayMs:       intOr(root, "delayMs", 0),
		AzimuthDeg:    optFloat(root, "azimuthDeg"),
		DirectionBand: str(root, "directionBand"),
		Pattern:       str(root, "pattern"),
	}, nil
}

func decodeEvent(root gjson.Result) Event {
	return Event{
		ID:            str(root, "id"),
		Kind:          str(root, "kind"),
		Intensity:     floatOr(root, "intensity", 0.5),
		AzimuthDeg:    optFloat(root, "azimuthDeg"),
		DirectionBand: str(root, "directionBand"),
	}
}

func str(root gjson.Result, name string) string {
	v := root.Get(name)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

func optFloat(root gjson.Result, name string) *float64 {
	v := root.Get(name)
	switch v.Type {
	case gjson.Number:
		return finite(v.Num)
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		return finite(f)
	default:
		return nil
	}
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func floatOr(root gjson.Result, name string, def float64) float64 {
	if f := optFloat(root, name); f != nil {
		return *f
	}
	return def
}

func intOr(root gjson.Result, name string, def int) int {
	v := root.Get(name)
	switch v.Type {
	case gjson.Number:
		if v.Num != math.Trunc(v.Num) || v.Num > math.MaxInt32 || v.Num < math.MinInt32 {
			return def
		}
		return int(v.Num)
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 32)
		if err != nil {
			return def
		}
		return int(n)
	default:
		return def
	}
}

func boolean(root gjson.Result, name string) (bool, bool) {
	v := root.Get(name)
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if strings.EqualFold(s, "true") {
			return true, true
		}
		if strings.EqualFold(s, "false") {
			return false, true
		}
	}
	return false, false
}
