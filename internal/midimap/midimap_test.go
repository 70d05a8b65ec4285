package midimap

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/icco/hapticd/internal/packet"
)

func TestNoteFreq(t *testing.T) {
	tests := []struct {
		note uint8
		want float64
	}{
		{69, 440},
		{57, 220},
		{81, 880},
		{24, 32.703},
	}

	for _, tt := range tests {
		if got := NoteFreq(tt.note); math.Abs(got-tt.want) > 1e-3 {
			t.Errorf("NoteFreq(%d) = %v, want %v", tt.note, got, tt.want)
		}
	}
}

func TestNoteName(t *testing.T) {
	tests := map[uint8]string{60: "C4", 61: "C#4", 21: "A0", 24: "C1", 127: "G9"}
	for note, want := range tests {
		if got := NoteName(note); got != want {
			t.Errorf("NoteName(%d) = %q, want %q", note, got, want)
		}
	}
}

func TestNoteToHaptic(t *testing.T) {
	p := NoteToHaptic(2, 33, 127, 90)

	if p.Key != "midi.ch2.33" {
		t.Errorf("Unexpected key %q", p.Key)
	}
	if math.Abs(p.F0-55) > 1e-9 || p.F0 != p.F1 {
		t.Errorf("Expected constant 55 Hz, got %v -> %v", p.F0, p.F1)
	}
	if p.Gain != 1 || p.Ms != 90 {
		t.Errorf("Unexpected gain/ms: %v %v", p.Gain, p.Ms)
	}

	if got := NoteToHaptic(0, 33, 0, 0); got.Gain != 0 || got.Ms != 1 {
		t.Errorf("Expected silent minimum-length packet, got %+v", got)
	}
}

func testPattern() Pattern {
	p := NewPattern()
	p.BPM = 120
	p.Steps[0][0] = true
	p.Steps[0][8] = true
	p.Steps[1][4] = true
	p.Notes[1][4] = 40
	p.Steps[3][15] = true
	return p
}

func TestPatternRoundTrip(t *testing.T) {
	want := testPattern()

	var buf bytes.Buffer
	if err := want.WriteSMF(&buf); err != nil {
		t.Fatalf("WriteSMF: %v", err)
	}
	got, err := LoadPattern(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("LoadPattern: %v", err)
	}

	if got.BPM != want.BPM {
		t.Errorf("BPM = %d, want %d", got.BPM, want.BPM)
	}
	if got.Steps != want.Steps {
		t.Errorf("Steps differ:\n got %v\nwant %v", got.Steps, want.Steps)
	}
	if got.Notes[1][4] != 40 || got.Notes[0][0] != defaultNotes[0] {
		t.Errorf("Notes not restored: %v", got.Notes)
	}
}

func TestPatternFileMissingIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.mid")

	p, err := LoadPatternFile(path)
	if err != nil {
		t.Fatalf("LoadPatternFile: %v", err)
	}
	if p.BPM != DefaultBPM || len(p.Hits()) != 0 {
		t.Errorf("Expected empty pattern, got %+v", p)
	}

	p = testPattern()
	if err := SavePatternFile(path, p); err != nil {
		t.Fatalf("SavePatternFile: %v", err)
	}
	loaded, err := LoadPatternFile(path)
	if err != nil {
		t.Fatalf("LoadPatternFile: %v", err)
	}
	if loaded.Steps != p.Steps {
		t.Error("Saved pattern did not load back")
	}
}

func TestReadPatternTiming(t *testing.T) {
	var buf bytes.Buffer
	if err := testPattern().WriteSMF(&buf); err != nil {
		t.Fatalf("WriteSMF: %v", err)
	}

	hits, err := ReadPattern(&buf, 50)
	if err != nil {
		t.Fatalf("ReadPattern: %v", err)
	}
	if len(hits) != 4 {
		t.Fatalf("Expected 4 hits, got %d", len(hits))
	}

	// 120 BPM sixteenths are 125 ms apart.
	wantAt := []time.Duration{0, 500 * time.Millisecond, time.Second, 1875 * time.Millisecond}
	wantKey := []string{"midi.ch0.24", "midi.ch1.40", "midi.ch0.24", "midi.ch3.36"}
	for i, h := range hits {
		if d := h.At - wantAt[i]; d < -time.Millisecond || d > time.Millisecond {
			t.Errorf("Hit %d at %v, want %v", i, h.At, wantAt[i])
		}
		if h.Haptic.Key != wantKey[i] {
			t.Errorf("Hit %d key %q, want %q", i, h.Haptic.Key, wantKey[i])
		}
		// Note-off lands one tick before the next step.
		if h.Haptic.Ms < 120 || h.Haptic.Ms > 125 {
			t.Errorf("Hit %d lasts %d ms, want about 124", i, h.Haptic.Ms)
		}
	}

	if l := Length(hits); l < 1995*time.Millisecond || l > 2*time.Second {
		t.Errorf("Length = %v, want about 2s", l)
	}
}

func TestScheduleEncodesOffsets(t *testing.T) {
	hits := []Hit{
		{At: 0, Haptic: packet.Haptic{Key: "a", Ms: 10}},
		{At: 250 * time.Millisecond, Haptic: packet.Haptic{Key: "b", Ms: 10, DelayMs: 5}},
	}

	got := Schedule(hits)
	if len(got) != 2 {
		t.Fatalf("Expected 2 packets, got %d", len(got))
	}
	if got[0].DelayMs != 0 || got[1].DelayMs != 255 {
		t.Errorf("Unexpected delays: %d, %d", got[0].DelayMs, got[1].DelayMs)
	}
	if hits[1].Haptic.DelayMs != 5 {
		t.Error("Schedule must not modify its input")
	}
}

func TestPatternHits(t *testing.T) {
	hits := testPattern().Hits()
	if len(hits) != 4 {
		t.Fatalf("Expected 4 hits, got %d", len(hits))
	}
	if hits[1].At != 500*time.Millisecond || hits[1].Haptic.Key != "midi.ch1.40" {
		t.Errorf("Unexpected second hit: %+v", hits[1])
	}
	if hits[0].Haptic.Ms != 125 {
		t.Errorf("Expected one-step hits, got %d ms", hits[0].Haptic.Ms)
	}
}
