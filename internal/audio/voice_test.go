package audio

import (
	"math"
	"math/rand/v2"
	"testing"
)

const testRate = 48000

func testVoice() Voice {
	// f0=60 f1=30, 40 ms at 48 kHz.
	return Voice{
		StartSample:     0,
		DurationSamples: 1920,
		F0:              60,
		F1:              30,
		Gain:            0.8,
		NoiseMix:        0.15,
	}
}

func TestVoiceLifetime(t *testing.T) {
	v := testVoice()
	v.StartSample = 1000
	rng := rand.New(rand.NewPCG(1, 2))

	tests := []struct {
		index  int64
		active bool
	}{
		{999, false},
		{1000, true},
		{1000 + 1919, true},
		{1000 + 1920, false},
		{-5, false},
	}
	for _, tt := range tests {
		_, _, ok := v.Sample(tt.index, testRate, rng)
		if ok != tt.active {
			t.Errorf("Sample(%d) active = %v, want %v", tt.index, ok, tt.active)
		}
	}

	if v.Finished(1000 + 1920 + 1) {
		t.Error("Voice should not be finished one sample after its end")
	}
	if !v.Finished(1000 + 1920 + 2) {
		t.Error("Voice should be finished two samples after its end")
	}
}

func TestVoiceClickScenario(t *testing.T) {
	v := testVoice()
	rng := rand.New(rand.NewPCG(1, 2))

	l, r, ok := v.Sample(0, testRate, rng)
	if !ok {
		t.Fatal("Expected voice active at index 0")
	}
	if l != 0 || r != 0 {
		t.Errorf("Expected silence at fade-in start, got (%v, %v)", l, r)
	}

	if a := v.Amplitude(1919, testRate); a > 0.8/240+1e-9 {
		t.Errorf("Expected near-zero amplitude at fade-out end, got %v", a)
	}
	l, r, _ = v.Sample(1919, testRate, rng)
	if math.Abs(l) > 0.004 || math.Abs(r) > 0.004 {
		t.Errorf("Expected near-silence at index 1919, got (%v, %v)", l, r)
	}

	if hz := v.Freq(960); math.Abs(hz-45) > 1e-9 {
		t.Errorf("Expected 45 Hz at midpoint, got %v", hz)
	}
	if a := v.Amplitude(960, testRate); a != 0.8 {
		t.Errorf("Expected full gain at midpoint, got %v", a)
	}
}

func TestVoiceEnvelopeHasNoSteps(t *testing.T) {
	short := testVoice()
	short.DurationSamples = 96 // 2 ms
	odd := testVoice()
	odd.DurationSamples = 301

	tests := []struct {
		name string
		v    Voice
	}{
		{"click", testVoice()},
		{"shorter than both fades", short},
		{"odd length overlap", odd},
		{"single sample", Voice{DurationSamples: 1, Gain: 1}},
	}

	fade := float64(fadeMs * testRate / 1000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxStep := tt.v.Gain/fade + 1e-12
			prev := 0.0
			for i := int64(0); i <= tt.v.DurationSamples; i++ {
				a := tt.v.Amplitude(i, testRate)
				if d := math.Abs(a - prev); d > maxStep {
					t.Fatalf("Amplitude jumps by %v at index %d (max %v)", d, i, maxStep)
				}
				prev = a
			}
			if prev != 0 {
				t.Errorf("Expected zero amplitude after the voice, got %v", prev)
			}
		})
	}
}

func TestVoiceFrequencySweepIsMonotonic(t *testing.T) {
	tests := []struct {
		name   string
		f0, f1 float64
	}{
		{"down", 60, 30},
		{"up", 25, 80},
		{"flat", 40, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Voice{DurationSamples: 4800, F0: tt.f0, F1: tt.f1}
			prev := v.Freq(0)
			if prev != tt.f0 {
				t.Fatalf("Freq(0) = %v, want %v", prev, tt.f0)
			}
			for i := int64(1); i < v.DurationSamples; i++ {
				hz := v.Freq(i)
				if tt.f1 >= tt.f0 && hz < prev || tt.f1 < tt.f0 && hz > prev {
					t.Fatalf("Sweep not monotonic at %d: %v then %v", i, prev, hz)
				}
				prev = hz
			}
		})
	}
}

func TestVoiceSampleIsRepeatable(t *testing.T) {
	v := testVoice()
	v.NoiseMix = 0
	rng := rand.New(rand.NewPCG(1, 2))

	for _, idx := range []int64{300, 960, 1500} {
		l1, r1, _ := v.Sample(idx, testRate, rng)
		// Query out of order in between.
		v.Sample(idx-100, testRate, rng)
		l2, r2, _ := v.Sample(idx, testRate, rng)
		if l1 != l2 || r1 != r2 {
			t.Errorf("Sample(%d) differs between calls: (%v,%v) vs (%v,%v)", idx, l1, r1, l2, r2)
		}
	}
}

func TestVoicePulseGate(t *testing.T) {
	v := Voice{
		DurationSamples: testRate, // one second
		F0:              40,
		F1:              40,
		Gain:            1,
		PulsePeriodMs:   100,
		PulseWidthMs:    50,
	}

	msToIndex := func(ms int) int64 { return int64(ms * testRate / 1000) }

	tests := []struct {
		ms   int
		gate bool
	}{
		{25, true},
		{75, false},
		{125, true},
		{199, false},
		{450, true},
	}
	for _, tt := range tests {
		a := v.Amplitude(msToIndex(tt.ms), testRate)
		if (a > 0) != tt.gate {
			t.Errorf("Amplitude at %d ms = %v, want open=%v", tt.ms, a, tt.gate)
		}
	}

	v.PulseWidthMs = 0
	if a := v.Amplitude(msToIndex(75), testRate); a != 1 {
		t.Errorf("Zero pulse width should disable gating, got %v", a)
	}
}
