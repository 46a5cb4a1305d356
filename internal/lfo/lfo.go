// Package lfo provides the slow sine used to swell parameters.
package lfo

import "math"

// LFO is a low-frequency sine that produces per-sample modulation. Attach it
// to a gain parameter to get a slow swell around the parameter's value.
type LFO struct {
	depth  float64 // peak deviation added to the modulated parameter
	rateHz float64
	phase  float64 // [0, 1)
}

// New returns an LFO starting at phase 0. LFOs built with the same rate stay
// in phase with each other.
func New(rateHz, depth float64) *LFO {
	return &LFO{depth: depth, rateHz: rateHz}
}

func (l *LFO) Rate() float64  { return l.rateHz }
func (l *LFO) Depth() float64 { return l.depth }

// Period returns the length of one cycle, or 0 for a stopped LFO.
func (l *LFO) Period() float64 {
	if l.rateHz == 0 {
		return 0
	}
	return 1 / l.rateHz
}

// Sample advances the LFO by one sample and returns a value in [-depth, +depth].
func (l *LFO) Sample(sampleRate float64) float64 {
	if l.depth == 0 || l.rateHz == 0 || sampleRate == 0 {
		return 0
	}
	v := math.Sin(2 * math.Pi * l.phase)
	l.phase += l.rateHz / sampleRate
	l.phase -= math.Floor(l.phase)
	return v * l.depth
}
