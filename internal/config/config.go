// Package config loads the engine and mapping configuration files.
//
// Both files are JSON. Comments and trailing commas are accepted so hand-edited
// files keep working.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Defaults used when a field is absent from engine.json.
const (
	DefaultWSURL                = "ws://127.0.0.1:7117/"
	DefaultSampleRate           = 48000
	DefaultChannels             = 2
	DefaultBlockSize            = 512
	DefaultTargetBufferedBlocks = 3
	DefaultBufferMs             = 30
)

// Engine is the contents of engine.json.
type Engine struct {
	WSURL                string         `json:"wsUrl"`
	SampleRate           int            `json:"sampleRate"`
	Channels             int            `json:"channels"`
	BlockSize            int            `json:"blockSize"`
	TargetBufferedBlocks int            `json:"targetBufferedBlocks"`
	MasterGain           float64        `json:"masterGain"`
	Output               Output         `json:"output"`
	Latency              Latency        `json:"latency"`
	Buses                map[string]Bus `json:"buses"`
}

// Output describes the playback device.
type Output struct {
	DeviceNameContains string `json:"deviceNameContains"`
	BufferMs           int    `json:"bufferMs"`
}

// Latency holds the global output delay applied to every triggered voice.
type Latency struct {
	DelayMs int `json:"delayMs"`
}

// Bus is one named gain group.
type Bus struct {
	Gain float64 `json:"gain"`
}

// DefaultEngine returns an Engine populated with the documented defaults.
func DefaultEngine() Engine {
	return Engine{
		WSURL:                DefaultWSURL,
		SampleRate:           DefaultSampleRate,
		Channels:             DefaultChannels,
		BlockSize:            DefaultBlockSize,
		TargetBufferedBlocks: DefaultTargetBufferedBlocks,
		MasterGain:           1.0,
		Output:               Output{BufferMs: DefaultBufferMs},
	}
}

// UnmarshalJSON decodes a bus, keeping gain at 1.0 when it is not given.
func (b *Bus) UnmarshalJSON(data []byte) error {
	type plain Bus
	p := plain{Gain: 1.0}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = Bus(p)
	return nil
}

// Validate reports whether the engine can produce a meaningful audio format.
func (e Engine) Validate() error {
	if e.SampleRate <= 0 {
		return fmt.Errorf("%w: sampleRate must be > 0, got %d", ErrInvalidConfig, e.SampleRate)
	}
	if e.Channels < 1 || e.Channels > 2 {
		return fmt.Errorf("%w: only mono/stereo supported, got %d channels", ErrInvalidConfig, e.Channels)
	}
	if e.BlockSize <= 0 {
		return fmt.Errorf("%w: blockSize must be > 0, got %d", ErrInvalidConfig, e.BlockSize)
	}
	if e.TargetBufferedBlocks <= 0 {
		return fmt.Errorf("%w: targetBufferedBlocks must be > 0, got %d", ErrInvalidConfig, e.TargetBufferedBlocks)
	}
	return nil
}

// BusGains builds the case-insensitive bus gain table.
func (e Engine) BusGains() BusGains {
	g := make(BusGains, len(e.Buses))
	for name, bus := range e.Buses {
		g[strings.ToLower(name)] = bus.Gain
	}
	return g
}

// BusGains maps a lower-cased bus name to its gain.
type BusGains map[string]float64

// Gain returns the gain of the named bus, or 1.0 when the bus is unknown.
func (g BusGains) Gain(bus string) float64 {
	if v, ok := g[strings.ToLower(bus)]; ok {
		return v
	}
	return 1.0
}

// ParseEngine decodes and validates engine.json contents.
func ParseEngine(data []byte) (Engine, error) {
	cfg := DefaultEngine()
	if err := decode(data, &cfg); err != nil {
		return Engine{}, fmt.Errorf("parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

// LoadEngine reads, decodes and validates the engine config at path.
func LoadEngine(path string) (Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("read engine config: %w", err)
	}
	cfg, err := ParseEngine(data)
	if err != nil {
		return Engine{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, v any) error {
	std, err := hujson.Standardize(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(std, v)
}
