// Package lullaby sequences the built-in melodies. A Score is walked note by
// note into pairs of enveloped sine oscillators on a graph.Context, and a
// Playback keeps re-arming the next pass so the melody loops without a gap.
package lullaby

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidScore = errors.New("lullaby: invalid score")

// Rest is the pitch name of a silent step.
const Rest = "REST"

// noteFreq maps pitch names to Hz.
var noteFreq = map[string]float64{
	"C3": 130.81, "E3": 164.81, "F3": 174.61, "G3": 196.00, "A3": 220.00, "Bb3": 233.08, "B3": 246.94,
	"C4": 261.63, "D4": 293.66, "Eb4": 311.13, "E4": 329.63, "F4": 349.23, "F#4": 369.99,
	"G4": 392.00, "Ab4": 415.30, "A4": 440.00, "Bb4": 466.16, "B4": 493.88,
	"C5": 523.25, "D5": 587.33, "E5": 659.25, "F5": 698.46, "G5": 783.99,
	Rest: 0,
}

// frequency returns the pitch in Hz; a rest is 0.
func frequency(pitch string) (float64, bool) {
	f, ok := noteFreq[pitch]
	return f, ok
}

// Note is one step of a melody, Beats long.
type Note struct {
	Pitch string
	Beats float64
}

type Score struct {
	Name  string
	Title string
	BPM   float64
	Notes []Note
}

// BeatDuration is the length of one beat in seconds.
func (s Score) BeatDuration() float64 { return 60 / s.BPM }

// Beats sums the note lengths, rests included.
func (s Score) Beats() float64 {
	var n float64
	for _, note := range s.Notes {
		n += note.Beats
	}
	return n
}

// Duration is the length of one pass in seconds.
func (s Score) Duration() float64 { return s.Beats() * s.BeatDuration() }

// minNote is the shortest note whose 40 ms attack still ends before the hold
// at 70% of the note.
const minNote = attack / holdEnd

// Validate checks that every note has a known pitch and is long enough for
// the envelope.
func (s Score) Validate() error {
	if !(s.BPM > 0) {
		return fmt.Errorf("%w: %s: bpm %v", ErrInvalidScore, s.Name, s.BPM)
	}
	if len(s.Notes) == 0 {
		return fmt.Errorf("%w: %s: no notes", ErrInvalidScore, s.Name)
	}
	beat := s.BeatDuration()
	for i, n := range s.Notes {
		if _, ok := frequency(n.Pitch); !ok {
			return fmt.Errorf("%w: %s: note %d: unknown pitch %q", ErrInvalidScore, s.Name, i, n.Pitch)
		}
		if d := n.Beats * beat; !(d > minNote) {
			return fmt.Errorf("%w: %s: note %d: %v s is too short", ErrInvalidScore, s.Name, i, d)
		}
	}
	return nil
}

// Twinkle is sung A-B-B-A: the "up above the world" pair comes back twice
// before the opening returns.
var (
	twinkleA = []Note{
		{"C4", 1}, {"C4", 1}, {"G4", 1}, {"G4", 1}, {"A4", 1}, {"A4", 1}, {"G4", 2},
		{"F4", 1}, {"F4", 1}, {"E4", 1}, {"E4", 1}, {"D4", 1}, {"D4", 1}, {"C4", 2},
	}
	twinkleB = []Note{
		{"G4", 1}, {"G4", 1}, {"F4", 1}, {"F4", 1}, {"E4", 1}, {"E4", 1}, {"D4", 2},
		{"G4", 1}, {"G4", 1}, {"F4", 1}, {"F4", 1}, {"E4", 1}, {"E4", 1}, {"D4", 2},
	}
)

var catalog = []Score{
	{
		Name:  "twinkle",
		Title: "Twinkle, Twinkle, Little Star",
		BPM:   90,
		Notes: slices.Concat(twinkleA, twinkleB, twinkleB, twinkleA),
	},
	{
		Name:  "brahms",
		Title: "Brahms' Lullaby",
		BPM:   72,
		Notes: []Note{
			{"E4", 1}, {"E4", 0.5}, {"E4", 1.5}, {"E4", 1}, {"G4", 0.5}, {"G4", 1.5},
			{"E4", 1}, {"E4", 0.5}, {"E4", 1.5}, {"E4", 1}, {"G4", 0.5}, {"G4", 1.5},
			{"E4", 1}, {"G4", 1}, {"C5", 1}, {"B4", 2}, {"A4", 1},
			{"F4", 1}, {"A4", 1}, {"B4", 0.5}, {"A4", 0.5}, {"F4", 1}, {"A4", 0.5}, {"G4", 1.5},
			{"E4", 1}, {"E4", 0.5}, {"E4", 1}, {"F4", 0.5}, {"D4", 1.5},
			{"E4", 1}, {"F4", 0.5}, {"E4", 0.5}, {"C4", 1}, {"E4", 0.5}, {"D4", 1.5},
			{"C4", 1}, {"E4", 1}, {"G4", 0.5}, {"E4", 0.5}, {"C5", 1}, {"B4", 0.5}, {"A4", 1.5},
			{"F4", 1}, {"A4", 0.5}, {"G4", 0.5}, {"F4", 1}, {"E4", 0.5}, {"D4", 1.5},
			{"C4", 3},
		},
	},
	{
		Name:  "mozzart",
		Title: "Mozart's Lullaby",
		BPM:   80,
		Notes: []Note{
			{"E4", 1}, {"E4", 1}, {"F4", 0.5}, {"E4", 0.5}, {"D4", 1}, {"C4", 1},
			{"C4", 1}, {"D4", 1}, {"E4", 1}, {"D4", 1.5}, {Rest, 0.5},
			{"E4", 1}, {"E4", 1}, {"F4", 0.5}, {"E4", 0.5}, {"D4", 1}, {"C4", 1},
			{"C4", 1}, {"D4", 1}, {"E4", 1}, {"C4", 1.5}, {Rest, 0.5},
			{"G4", 1}, {"G4", 1}, {"A4", 0.5}, {"G4", 0.5}, {"F4", 1}, {"E4", 1},
			{"E4", 1}, {"F4", 1}, {"G4", 1}, {"F4", 1.5}, {Rest, 0.5},
			{"E4", 1}, {"E4", 1}, {"F4", 0.5}, {"E4", 0.5}, {"D4", 1}, {"C4", 1},
			{"C4", 1}, {"D4", 1}, {"E4", 1}, {"C4", 1.5}, {Rest, 0.5},
		},
	},
}

// Lookup returns the catalog score with the given name. The returned score
// shares its note slice with the catalog and must not be modified.
func Lookup(name string) (Score, bool) {
	for _, s := range catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Score{}, false
}

// Names lists the catalog in display order.
func Names() []string {
	names := make([]string, len(catalog))
	for i, s := range catalog {
		names[i] = s.Name
	}
	return names
}
