package midimap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	Steps               = 16
	Lanes               = 4
	ticksPerQuarterNote = 960
	ticksPerStep        = ticksPerQuarterNote / 4 // one bar = 4 beats = 16 steps
	patternVelocity     = 100

	DefaultBPM = 120
	MinBPM     = 20
	MaxBPM     = 300
)

// defaultNotes are bass-range notes (C1, E1, G1, C2), one per lane.
var defaultNotes = [Lanes]int{24, 28, 31, 36}

// Pattern is a one-bar step pattern. Each lane is written as its own track
// on MIDI channel lane.
type Pattern struct {
	BPM   int
	Steps [Lanes][Steps]bool
	Notes [Lanes][Steps]int
}

// NewPattern returns an empty pattern at DefaultBPM.
func NewPattern() Pattern {
	p := Pattern{BPM: DefaultBPM}
	for lane := 0; lane < Lanes; lane++ {
		for step := 0; step < Steps; step++ {
			p.Notes[lane][step] = defaultNotes[lane]
		}
	}
	return p
}

// StepDuration is the length of one sixteenth note.
func (p Pattern) StepDuration() time.Duration {
	return time.Minute / time.Duration(max(1, p.BPM)) / 4
}

// Hits returns the pattern's active steps as timed haptic hits, each one step long.
func (p Pattern) Hits() []Hit {
	step := p.StepDuration()
	ms := int(step / time.Millisecond)

	var hits []Hit
	for s := 0; s < Steps; s++ {
		for lane := 0; lane < Lanes; lane++ {
			if !p.Steps[lane][s] {
				continue
			}
			hits = append(hits, Hit{
				At:     time.Duration(s) * step,
				Haptic: NoteToHaptic(uint8(lane), uint8(p.Notes[lane][s]), patternVelocity, ms), //nolint:gosec // lane and note are bounded
			})
		}
	}
	return hits
}

// WriteSMF writes the pattern as a Standard MIDI File with a tempo track and
// one track per lane.
func (p Pattern) WriteSMF(w io.Writer) error {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ticksPerQuarterNote)

	var track0 smf.Track
	track0.Add(0, smf.MetaMeter(4, 4))
	track0.Add(0, smf.MetaTempo(float64(p.BPM)))
	track0.Close(0)
	if err := sm.Add(track0); err != nil {
		return fmt.Errorf("add tempo track: %w", err)
	}

	for lane := 0; lane < Lanes; lane++ {
		var track smf.Track
		var lastTick uint32

		for step := 0; step < Steps; step++ {
			if !p.Steps[lane][step] {
				continue
			}
			// Safe casts: lane, step and note are bounded by Lanes, Steps and 0..127.
			ch := uint8(lane)                  //nolint:gosec
			note := uint8(p.Notes[lane][step]) //nolint:gosec
			pos := uint32(step) * ticksPerStep //nolint:gosec

			track.Add(pos-lastTick, midi.NoteOn(ch, note, patternVelocity))
			track.Add(ticksPerStep-1, midi.NoteOff(ch, note))
			lastTick = pos + ticksPerStep - 1
		}

		endTick := uint32(Steps) * ticksPerStep
		if lastTick < endTick {
			track.Close(endTick - lastTick)
		} else {
			track.Close(0)
		}
		if err := sm.Add(track); err != nil {
			return fmt.Errorf("add track %d: %w", lane, err)
		}
	}

	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("write midi file: %w", err)
	}
	return nil
}

// LoadPattern reads a pattern written by WriteSMF. Notes beyond the first bar
// or the fourth lane are ignored.
func LoadPattern(r io.Reader) (Pattern, error) {
	p := NewPattern()

	rd, err := smf.ReadFrom(r)
	if err != nil {
		return p, fmt.Errorf("read midi file: %w", err)
	}

	if tc := rd.TempoChanges(); len(tc) > 0 {
		p.BPM = min(MaxBPM, max(MinBPM, int(tc[0].BPM)))
	}

	// Track 0 holds the tempo; lanes start at track 1.
	for trackIdx := 1; trackIdx < len(rd.Tracks) && trackIdx <= Lanes; trackIdx++ {
		lane := trackIdx - 1
		var tick uint32
		for _, ev := range rd.Tracks[trackIdx] {
			tick += ev.Delta

			var channel, key, velocity uint8
			if !ev.Message.GetNoteOn(&channel, &key, &velocity) || velocity == 0 {
				continue
			}
			if step := int(tick / ticksPerStep); step < Steps {
				p.Notes[lane][step] = int(key)
				p.Steps[lane][step] = true
			}
		}
	}
	return p, nil
}

// LoadPatternFile loads path, returning a new empty pattern if it does not exist.
func LoadPatternFile(path string) (Pattern, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewPattern(), nil
	}
	if err != nil {
		return Pattern{}, err
	}
	defer f.Close()
	return LoadPattern(f)
}

// SavePatternFile writes p to path.
func SavePatternFile(path string, p Pattern) error {
	if path == "" {
		return fmt.Errorf("no file path set")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteSMF(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
