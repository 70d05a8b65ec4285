package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Effect modes.
const (
	ModeUsePacket     = "usePacket"
	ModeTelemetryWind = "telemetryWind"
	ModeDisableWind   = "disableWind"
	ModeNone          = "none"
)

// Effect routings.
const (
	RoutingAll                  = "all"
	RoutingLeftRightFromAzimuth = "leftRightFromAzimuth"
)

// Rule types.
const (
	TypeHaptic = "haptic"
	TypeEvent  = "event"
)

// Effect describes what to do with a matched message.
type Effect struct {
	Mode    string  `json:"mode"`
	Bus     string  `json:"bus"`
	Gain    float64 `json:"gain"`
	Routing string  `json:"routing"`
}

// DefaultEffect is the effect an empty effect object in a mapping file decodes to.
func DefaultEffect() Effect {
	return Effect{Mode: ModeUsePacket, Bus: "impacts", Gain: 1.0, Routing: RoutingAll}
}

// NoopEffect is selected when no rule matches and no fallback is configured.
func NoopEffect() Effect {
	return Effect{Mode: ModeNone, Bus: "", Gain: 0, Routing: RoutingAll}
}

// UnmarshalJSON fills absent fields with DefaultEffect values.
func (e *Effect) UnmarshalJSON(data []byte) error {
	type plain Effect
	p := plain(DefaultEffect())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Effect(p)
	return nil
}

// Is reports whether the effect has the given mode, ignoring case.
func (e Effect) Is(mode string) bool {
	return strings.EqualFold(e.Mode, mode)
}

// When is the match predicate of a rule.
type When struct {
	Type      string `json:"type"`
	KeyPrefix string `json:"keyPrefix"`
	Kind      string `json:"kind"`
}

// Rule pairs a predicate with the effect to apply.
type Rule struct {
	When   When   `json:"when"`
	Effect Effect `json:"effect"`
}

// Fallback holds effects used when no rule matches.
type Fallback struct {
	Haptic *Effect `json:"haptic"`
}

// Mapping is the contents of mappings.json. Rules are matched in order.
type Mapping struct {
	Version  int       `json:"version"`
	Rules    []Rule    `json:"rules"`
	Fallback *Fallback `json:"fallback"`
}

// MatchHaptic returns the effect for a haptic key: the first haptic rule whose
// key prefix is empty or a case-insensitive prefix of key, then the haptic
// fallback, then the no-op effect.
func (m Mapping) MatchHaptic(key string) Effect {
	for _, r := range m.Rules {
		if !strings.EqualFold(r.When.Type, TypeHaptic) {
			continue
		}
		if r.When.KeyPrefix != "" && !hasPrefixFold(key, r.When.KeyPrefix) {
			continue
		}
		return r.Effect
	}
	if m.Fallback != nil && m.Fallback.Haptic != nil {
		return *m.Fallback.Haptic
	}
	return NoopEffect()
}

// MatchEvent returns the effect for an event kind: the first event rule whose
// kind is empty or equal to kind ignoring case, else the no-op effect.
func (m Mapping) MatchEvent(kind string) Effect {
	for _, r := range m.Rules {
		if !strings.EqualFold(r.When.Type, TypeEvent) {
			continue
		}
		if r.When.Kind != "" && !strings.EqualFold(kind, r.When.Kind) {
			continue
		}
		return r.Effect
	}
	return NoopEffect()
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// ParseMapping decodes mappings.json contents.
func ParseMapping(data []byte) (Mapping, error) {
	m := Mapping{Version: 1}
	if err := decode(data, &m); err != nil {
		return Mapping{}, fmt.Errorf("parse mapping config: %w", err)
	}
	return m, nil
}

// LoadMapping reads and decodes the mapping config at path.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, fmt.Errorf("read mapping config: %w", err)
	}
	m, err := ParseMapping(data)
	if err != nil {
		return Mapping{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
