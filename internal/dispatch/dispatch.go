// Package dispatch turns decoded messages into synth commands using the
// ordered mapping rules.
package dispatch

import (
	"errors"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/icco/hapticd/internal/audio"
	"github.com/icco/hapticd/internal/config"
	"github.com/icco/hapticd/internal/packet"
)

// Synth is the set of synth commands dispatch issues.
type Synth interface {
	TriggerVoice(effect config.Effect, p packet.Haptic, busGain, masterGain float64, globalDelayMs int) audio.Voice
	EnableWind(effect config.Effect, e packet.Event, busGain, masterGain float64)
	DisableWind()
	SetTelemetry(t packet.Telemetry)
}

// Observer is told about every decoded message and the effect chosen for it.
// Telemetry and unknown messages carry a zero Effect.
type Observer func(msg packet.Message, effect config.Effect)

// Stats counts handled lines by outcome.
type Stats struct {
	Telemetry int64
	Haptic    int64
	Event     int64
	Unknown   int64
	Triggered int64
	Dropped   int64
	Invalid   int64
}

// Dispatcher routes messages to the synth. Safe for concurrent use.
type Dispatcher struct {
	synth    Synth
	mapping  config.Mapping
	buses    config.BusGains
	master   float64
	delayMs  int
	logger   *log.Logger
	observer Observer

	telemetry atomic.Int64
	haptic    atomic.Int64
	event     atomic.Int64
	unknown   atomic.Int64
	triggered atomic.Int64
	dropped   atomic.Int64
	invalid   atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver registers a hook called for every handled message.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// New creates a dispatcher.
func New(engine config.Engine, mapping config.Mapping, synth Synth, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		synth:   synth,
		mapping: mapping,
		buses:   engine.BusGains(),
		master:  engine.MasterGain,
		delayMs: engine.Latency.DelayMs,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleLine decodes one JSON line and handles it. Malformed lines are
// logged and skipped; haptic messages without a key are dropped silently.
func (d *Dispatcher) HandleLine(line []byte) {
	msg, err := packet.Decode(line)
	switch {
	case errors.Is(err, packet.ErrMissingKey):
		d.dropped.Add(1)
		return
	case err != nil:
		d.invalid.Add(1)
		d.logger.Warn("packet parse error", "err", err, "len", len(line))
		return
	}
	d.Handle(msg)
}

// Handle applies one decoded message.
func (d *Dispatcher) Handle(msg packet.Message) {
	var effect config.Effect

	switch m := msg.(type) {
	case packet.Telemetry:
		d.telemetry.Add(1)
		d.synth.SetTelemetry(m)
	case packet.Haptic:
		d.haptic.Add(1)
		effect = d.handleHaptic(m)
	case packet.Event:
		d.event.Add(1)
		effect = d.handleEvent(m)
	default:
		d.unknown.Add(1)
	}

	if d.observer != nil {
		d.observer(msg, effect)
	}
}

func (d *Dispatcher) handleHaptic(p packet.Haptic) config.Effect {
	effect := d.EffectForHaptic(p)
	if !effect.Is(config.ModeUsePacket) {
		return effect
	}
	d.trigger(effect, p)
	return effect
}

func (d *Dispatcher) trigger(effect config.Effect, p packet.Haptic) {
	v := d.synth.TriggerVoice(effect, p, d.buses.Gain(effect.Bus), d.master, d.delayMs)
	d.triggered.Add(1)
	d.logger.Debug("voice", "key", p.Key, "bus", effect.Bus, "gain", v.Gain, "pan", v.Pan,
		"start", v.StartSample, "samples", v.DurationSamples)
}

func (d *Dispatcher) handleEvent(e packet.Event) config.Effect {
	effect := d.EffectForEvent(e)
	switch {
	case effect.Is(config.ModeTelemetryWind):
		d.synth.EnableWind(effect, e, d.buses.Gain(effect.Bus), d.master)
		d.logger.Debug("wind on", "id", e.ID, "kind", e.Kind, "intensity", e.Intensity, "bus", effect.Bus)
	case effect.Is(config.ModeDisableWind):
		d.synth.DisableWind()
		d.logger.Debug("wind off", "id", e.ID, "kind", e.Kind)
	}
	return effect
}

// EffectForHaptic returns the effect the mapping selects for p.
func (d *Dispatcher) EffectForHaptic(p packet.Haptic) config.Effect {
	return d.mapping.MatchHaptic(p.Key)
}

// EffectForEvent returns the effect the mapping selects for e.
func (d *Dispatcher) EffectForEvent(e packet.Event) config.Effect {
	return d.mapping.MatchEvent(e.Kind)
}

// ClickPacket is the calibration click.
func ClickPacket() packet.Haptic {
	front := 0.0
	return packet.Haptic{
		Key:           "cal.click",
		F0:            60,
		F1:            30,
		Ms:            40,
		Gain:          0.8,
		Noise:         0.15,
		AzimuthDeg:    &front,
		DirectionBand: "front",
	}
}

// TriggerClick plays the calibration click on the impacts bus, bypassing the
// mapping rules.
func (d *Dispatcher) TriggerClick() {
	effect := config.DefaultEffect()
	d.trigger(effect, ClickPacket())
}

// Play triggers a locally generated haptic packet (MIDI notes, patterns).
// Mapping rules apply as for inbound packets; when they select nothing the
// packet plays on the default impacts bus.
func (d *Dispatcher) Play(p packet.Haptic) {
	effect := d.EffectForHaptic(p)
	switch {
	case effect.Is(config.ModeUsePacket):
	case effect.Is(config.ModeNone):
		effect = config.DefaultEffect()
	default:
		return
	}
	d.trigger(effect, p)
}

// Stats returns message counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Telemetry: d.telemetry.Load(),
		Haptic:    d.haptic.Load(),
		Event:     d.event.Load(),
		Unknown:   d.unknown.Load(),
		Triggered: d.triggered.Load(),
		Dropped:   d.dropped.Load(),
		Invalid:   d.invalid.Load(),
	}
}
