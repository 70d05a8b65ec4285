package config

import "testing"

const testMapping = `{
	"version": 1,
	"rules": [
		{ "when": { "type": "haptic", "keyPrefix": "damage." }, "effect": { "bus": "damage", "gain": 0.9 } },
		{ "when": { "type": "haptic", "keyPrefix": "damage.fall" }, "effect": { "bus": "fall", "gain": 0.1 } },
		{ "when": { "type": "event", "kind": "flight" }, "effect": { "mode": "telemetryWind", "bus": "movement", "routing": "leftRightFromAzimuth" } },
		{ "when": { "type": "haptic" }, "effect": { "mode": "ignore" } },
		{ "when": { "type": "event" }, "effect": { "mode": "usePacket" } }
	],
	"fallback": { "haptic": { "bus": "misc", "gain": 0.3 } }
}`

func TestParseMappingEffectDefaults(t *testing.T) {
	m, err := ParseMapping([]byte(testMapping))
	if err != nil {
		t.Fatalf("ParseMapping: %v", err)
	}

	if len(m.Rules) != 5 {
		t.Fatalf("Expected 5 rules, got %d", len(m.Rules))
	}

	e := m.Rules[0].Effect
	if e.Mode != ModeUsePacket || e.Routing != RoutingAll || e.Bus != "damage" || e.Gain != 0.9 {
		t.Errorf("Unexpected effect defaults: %+v", e)
	}

	wind := m.Rules[2].Effect
	if !wind.Is("TELEMETRYWIND") {
		t.Errorf("Expected telemetryWind mode, got %q", wind.Mode)
	}
	if wind.Gain != 1.0 {
		t.Errorf("Expected default gain 1.0, got %v", wind.Gain)
	}
}

func TestMatchHapticFirstMatchWins(t *testing.T) {
	m, err := ParseMapping([]byte(testMapping))
	if err != nil {
		t.Fatalf("ParseMapping: %v", err)
	}

	tests := []struct {
		key  string
		bus  string
		mode string
	}{
		// Both damage rules match; the earlier one wins.
		{"damage.fall", "damage", ModeUsePacket},
		{"DAMAGE.generic", "damage", ModeUsePacket},
		{"mining.swing", "impacts", "ignore"},
	}

	for _, tt := range tests {
		got := m.MatchHaptic(tt.key)
		if got.Bus != tt.bus || got.Mode != tt.mode {
			t.Errorf("MatchHaptic(%q) = %+v, want bus %q mode %q", tt.key, got, tt.bus, tt.mode)
		}
	}
}

func TestMatchHapticFallback(t *testing.T) {
	m, err := ParseMapping([]byte(`{
		"rules": [ { "when": { "type": "haptic", "keyPrefix": "damage." }, "effect": {} } ],
		"fallback": { "haptic": { "bus": "misc", "gain": 0.3 } }
	}`))
	if err != nil {
		t.Fatalf("ParseMapping: %v", err)
	}

	got := m.MatchHaptic("footstep")
	if got.Bus != "misc" || got.Gain != 0.3 || !got.Is(ModeUsePacket) {
		t.Errorf("Expected fallback effect, got %+v", got)
	}

	m.Fallback = nil
	if got := m.MatchHaptic("footstep"); !got.Is(ModeNone) {
		t.Errorf("Expected no-op effect without fallback, got %+v", got)
	}
}

func TestMatchEvent(t *testing.T) {
	m, err := ParseMapping([]byte(testMapping))
	if err != nil {
		t.Fatalf("ParseMapping: %v", err)
	}

	if got := m.MatchEvent("Flight"); !got.Is(ModeTelemetryWind) {
		t.Errorf("Expected telemetryWind for flight, got %+v", got)
	}
	if got := m.MatchEvent("impact"); !got.Is(ModeUsePacket) {
		t.Errorf("Expected catch-all event rule, got %+v", got)
	}

	empty := Mapping{}
	if got := empty.MatchEvent("flight"); !got.Is(ModeNone) {
		t.Errorf("Expected no-op for empty mapping, got %+v", got)
	}
}
