// Package midimap turns MIDI notes and Standard MIDI Files into haptic packets.
package midimap

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/icco/hapticd/internal/packet"
)

// DefaultNoteMs is the voice length used when a note has no matching note-off.
const DefaultNoteMs = 80

// NoteFreq returns the equal-tempered frequency of a MIDI note.
func NoteFreq(note uint8) float64 {
	// A4 (note 69) = 440 Hz
	return 440.0 * math.Pow(2.0, (float64(note)-69.0)/12.0)
}

// NoteName returns a note's name with octave, e.g. C4 for 60.
func NoteName(note uint8) string {
	notes := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	octave := int(note/12) - 1
	return fmt.Sprintf("%s%d", notes[note%12], octave)
}

// Key returns the haptic key used for a note on a channel.
func Key(channel, note uint8) string {
	return fmt.Sprintf("midi.ch%d.%d", channel, note)
}

// NoteToHaptic builds a constant-pitch haptic packet for a note. Velocity maps
// linearly to gain.
func NoteToHaptic(channel, note, velocity uint8, ms int) packet.Haptic {
	hz := NoteFreq(note)
	return packet.Haptic{
		Key:   Key(channel, note),
		F0:    hz,
		F1:    hz,
		Ms:    max(1, ms),
		Gain:  float64(velocity) / 127.0,
		Noise: 0,
	}
}

// Hit is one note of a file, placed on the file's timeline.
type Hit struct {
	At     time.Duration
	Haptic packet.Haptic
}

type noteID struct {
	track   int
	channel uint8
	note    uint8
}

type openNote struct {
	at       int64
	velocity uint8
	index    int
}

// ReadPattern reads every note of a Standard MIDI File. Durations come from
// the matching note-off; notes left open use ms.
func ReadPattern(r io.Reader, ms int) ([]Hit, error) {
	if ms <= 0 {
		ms = DefaultNoteMs
	}

	var hits []Hit
	open := map[noteID]openNote{}

	err := smf.ReadTracksFrom(r).Do(func(ev smf.TrackEvent) {
		var channel, key, velocity uint8
		switch {
		case ev.Message.GetNoteOn(&channel, &key, &velocity) && velocity > 0:
			id := noteID{ev.TrackNo, channel, key}
			open[id] = openNote{at: ev.AbsMicroSeconds, velocity: velocity, index: len(hits)}
			hits = append(hits, Hit{
				At:     time.Duration(ev.AbsMicroSeconds) * time.Microsecond,
				Haptic: NoteToHaptic(channel, key, velocity, ms),
			})
		case ev.Message.GetNoteOff(&channel, &key, &velocity),
			ev.Message.GetNoteOn(&channel, &key, &velocity):
			id := noteID{ev.TrackNo, channel, key}
			on, ok := open[id]
			if !ok {
				return
			}
			delete(open, id)
			durMs := int((ev.AbsMicroSeconds - on.at) / 1000)
			hits[on.index].Haptic.Ms = max(1, durMs)
		}
	}).Error()
	if err != nil {
		return nil, fmt.Errorf("read midi file: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].At < hits[j].At })
	return hits, nil
}

// Schedule converts hits into packets whose DelayMs carries the hit's offset,
// so the whole pattern can be triggered at once and timed by the sample clock.
func Schedule(hits []Hit) []packet.Haptic {
	out := make([]packet.Haptic, 0, len(hits))
	for _, h := range hits {
		p := h.Haptic
		p.DelayMs += int(h.At / time.Millisecond)
		out = append(out, p)
	}
	return out
}

// Length returns the time at which the last hit ends.
func Length(hits []Hit) time.Duration {
	var end time.Duration
	for _, h := range hits {
		end = max(end, h.At+time.Duration(h.Haptic.Ms)*time.Millisecond)
	}
	return end
}
