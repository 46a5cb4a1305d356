package lullaby

import (
	"errors"
	"fmt"

	"github.com/cbegin/hushbox-go/internal/graph"
)

// Note envelope. Times are seconds from note start, or fractions of the note.
const (
	attack      = 0.04
	holdEnd     = 0.7
	decayEnd    = 0.98
	primaryPeak = 0.5
	chorusPeak  = 0.15
	chorusCents = 5
	// Floor is the near-silent level decays and fades end on.
	Floor = 0.001
)

// NoteEvent is one sounded note of a pass.
type NoteEvent struct {
	Start     float64
	Frequency float64
	Duration  float64
}

// Pass is one scheduled walk through a score.
type Pass struct {
	Start    float64
	Duration float64
	Events   []NoteEvent
	voices   []*graph.Oscillator
}

// End is when the last note of the pass finishes.
func (p *Pass) End() float64 { return p.Start + p.Duration }

// Live reports whether any voice has not ended yet.
func (p *Pass) Live() bool {
	for _, v := range p.voices {
		if !v.Ended() {
			return true
		}
	}
	return false
}

// Stop cuts every voice still scheduled or sounding at the current time.
func (p *Pass) Stop(ctx *graph.Context) error {
	var errs []error
	now := ctx.CurrentTime()
	for _, v := range p.voices {
		if v.Ended() {
			continue
		}
		if err := v.Stop(now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PlayOnce schedules every note of score from start into out. Each note is a
// primary sine plus a quieter copy detuned by a few cents; rests only move the
// cursor. The pass lasts exactly score.Duration().
func PlayOnce(ctx *graph.Context, out graph.Input, score Score, start float64) (*Pass, error) {
	if err := score.Validate(); err != nil {
		return nil, err
	}
	if ctx.FrameAt(start) < ctx.Frame() {
		return nil, fmt.Errorf("%w: pass starts at %v, clock is at %v", graph.ErrInvalidTime, start, ctx.CurrentTime())
	}
	pass := &Pass{Start: start}
	beat := score.BeatDuration()
	t := start
	for _, n := range score.Notes {
		d := beat * n.Beats
		freq, _ := frequency(n.Pitch)
		if freq > 0 {
			if err := pass.note(ctx, out, freq, t, d); err != nil {
				_ = pass.Stop(ctx)
				return nil, err
			}
			pass.Events = append(pass.Events, NoteEvent{Start: t, Frequency: freq, Duration: d})
		}
		t += d
	}
	pass.Duration = t - start
	return pass, nil
}

func (p *Pass) note(ctx *graph.Context, out graph.Input, freq, t, d float64) error {
	primary := ctx.NewOscillator(freq)
	amp := primary.Amplitude
	if err := errors.Join(
		amp.SetValueAtTime(0, t),
		amp.LinearRampToValueAtTime(primaryPeak, t+attack),
		amp.SetValueAtTime(primaryPeak, t+d*holdEnd),
		amp.ExponentialRampToValueAtTime(Floor, t+d*decayEnd),
	); err != nil {
		return err
	}

	chorus := ctx.NewOscillator(freq)
	chorus.SetDetune(chorusCents)
	amp = chorus.Amplitude
	if err := errors.Join(
		amp.SetValueAtTime(0, t),
		amp.LinearRampToValueAtTime(chorusPeak, t+attack),
		amp.ExponentialRampToValueAtTime(Floor, t+d*decayEnd),
	); err != nil {
		return err
	}

	for _, osc := range []*graph.Oscillator{primary, chorus} {
		if err := osc.Start(t); err != nil {
			return err
		}
		if err := osc.Stop(t + d); err != nil {
			return err
		}
		osc.Connect(out)
		p.voices = append(p.voices, osc)
	}
	return nil
}
