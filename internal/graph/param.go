package graph

import (
	"fmt"
	"math"
	"sort"
)

type eventKind int

const (
	setEvent eventKind = iota
	linearEvent
	expEvent
)

type event struct {
	kind  eventKind
	time  float64
	value float64
}

// Modulator adds a signal to a parameter, one call per sample.
type Modulator interface {
	Sample(sampleRate float64) float64
}

// Param is an automatable value evaluated per sample. Ramps run from the
// previous event (or from the value held when the ramp was scheduled) to
// their own time and value.
type Param struct {
	ctx    *Context
	value  float64
	events []event
	// start point of the next ramp
	anchorTime  float64
	anchorValue float64
	mods        []Modulator
}

func newParam(ctx *Context, v float64) *Param {
	return &Param{ctx: ctx, value: v, anchorTime: ctx.CurrentTime(), anchorValue: v}
}

// Value returns the intrinsic value at the last rendered frame, without
// modulation.
func (p *Param) Value() float64 { return p.value }

// Pending returns how many automation events are still queued.
func (p *Param) Pending() int { return len(p.events) }

// Target returns the value the automation is heading to.
func (p *Param) Target() (float64, bool) {
	if len(p.events) == 0 {
		return p.value, false
	}
	return p.events[len(p.events)-1].value, true
}

// SetValue drops all automation and jumps to v now.
func (p *Param) SetValue(v float64) error {
	if !validValue(v) {
		return fmt.Errorf("%w: %v", ErrInvalidValue, v)
	}
	p.events = p.events[:0]
	p.value = v
	p.anchorTime, p.anchorValue = p.ctx.CurrentTime(), v
	return nil
}

func (p *Param) SetValueAtTime(v, t float64) error {
	return p.schedule(event{kind: setEvent, time: t, value: v})
}

func (p *Param) LinearRampToValueAtTime(v, t float64) error {
	return p.schedule(event{kind: linearEvent, time: t, value: v})
}

// ExponentialRampToValueAtTime needs a strictly positive target.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) error {
	if !(v > 0) {
		return fmt.Errorf("%w: exponential target must be positive, got %v", ErrInvalidValue, v)
	}
	return p.schedule(event{kind: expEvent, time: t, value: v})
}

func (p *Param) schedule(e event) error {
	if !validTime(e.time) {
		return fmt.Errorf("%w: %v", ErrInvalidTime, e.time)
	}
	if !validValue(e.value) {
		return fmt.Errorf("%w: %v", ErrInvalidValue, e.value)
	}
	if len(p.events) == 0 {
		p.anchorTime, p.anchorValue = p.ctx.CurrentTime(), p.value
	}
	// after any event at the same time
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > e.time })
	p.events = append(p.events, event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
	return nil
}

// CancelScheduledValues drops every event at or after t and holds the value
// reached so far, so a cancelled ramp never snaps back.
func (p *Param) CancelScheduledValues(t float64) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time >= t })
	if i < len(p.events) {
		clear(p.events[i:])
		p.events = p.events[:i]
	}
	if len(p.events) == 0 {
		p.anchorTime, p.anchorValue = p.ctx.CurrentTime(), p.value
	}
}

// CancelAndHold cancels everything pending from now on.
func (p *Param) CancelAndHold() {
	p.CancelScheduledValues(p.ctx.CurrentTime())
}

// RampTo replaces any pending automation with a linear ramp that reaches v
// after d seconds.
func (p *Param) RampTo(v, d float64) error {
	if !validTime(d) {
		return fmt.Errorf("%w: ramp length %v", ErrInvalidTime, d)
	}
	if !validValue(v) {
		return fmt.Errorf("%w: %v", ErrInvalidValue, v)
	}
	p.CancelAndHold()
	return p.LinearRampToValueAtTime(v, p.ctx.CurrentTime()+d)
}

// Modulate adds m's output to the parameter.
func (p *Param) Modulate(m Modulator) {
	p.mods = append(p.mods, m)
}

// ClearModulation detaches every modulator.
func (p *Param) ClearModulation() {
	clear(p.mods)
	p.mods = p.mods[:0]
}

// Modulators reports how many modulators are attached.
func (p *Param) Modulators() int { return len(p.mods) }

func (p *Param) valueAt(t float64) float64 {
	for len(p.events) > 0 {
		e := p.events[0]
		if t >= e.time {
			p.value = e.value
			p.anchorTime, p.anchorValue = e.time, e.value
			p.events[0] = event{}
			p.events = p.events[1:]
			continue
		}
		if e.kind == setEvent {
			break
		}
		span := e.time - p.anchorTime
		if span <= 0 {
			break
		}
		frac := (t - p.anchorTime) / span
		if frac < 0 {
			frac = 0
		}
		switch e.kind {
		case linearEvent:
			p.value = p.anchorValue + (e.value-p.anchorValue)*frac
		case expEvent:
			if p.anchorValue > 0 {
				p.value = p.anchorValue * math.Pow(e.value/p.anchorValue, frac)
			} else {
				p.value = p.anchorValue
			}
		}
		break
	}
	return p.value
}

// fill writes one value per frame starting at frame, modulation included.
func (p *Param) fill(frame int64, out []float64) {
	sr := float64(p.ctx.sampleRate)
	for i := range out {
		v := p.valueAt(float64(frame+int64(i)) / sr)
		for _, m := range p.mods {
			v += m.Sample(sr)
		}
		out[i] = v
	}
}
