// Package ambient builds the looping soundscapes: plain colored noise and the
// rain, ocean and heartbeat composites. Each Start function wires its nodes
// into an output gain connected to the caller's bus and returns a Handle that
// owns them.
package ambient

import (
	"errors"
	"fmt"

	"github.com/cbegin/hushbox-go/internal/effects"
	"github.com/cbegin/hushbox-go/internal/graph"
	"github.com/cbegin/hushbox-go/internal/noise"
)

// TeardownError records one element that failed to stop.
type TeardownError struct {
	Source  string
	Element string
	Err     error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("%s: stop %s: %v", e.Source, e.Element, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

type element struct {
	name string
	stop func() error
}

// Handle owns the nodes of one running source.
type Handle struct {
	name  string
	ctx   *graph.Context
	out   *graph.Gain
	elems []element
	done  bool
}

func newHandle(ctx *graph.Context, name string, bus graph.Input) *Handle {
	h := &Handle{name: name, ctx: ctx, out: ctx.NewGain(1)}
	h.out.Connect(bus)
	return h
}

func (h *Handle) Name() string { return h.name }

// Output is the composite gain every layer of the source feeds.
func (h *Handle) Output() *graph.Gain { return h.out }

// Live reports whether Teardown has not run yet.
func (h *Handle) Live() bool { return !h.done }

func (h *Handle) own(name string, stop func() error) {
	h.elems = append(h.elems, element{name: name, stop: stop})
}

// Teardown stops every owned element and disconnects the output. Each element
// is stopped even if an earlier one fails; failures come back joined as
// *TeardownError values. Calling Teardown again is a no-op returning nil.
func (h *Handle) Teardown() error {
	if h.done {
		return nil
	}
	h.done = true
	var errs []error
	for _, e := range h.elems {
		if err := e.stop(); err != nil {
			errs = append(errs, &TeardownError{Source: h.name, Element: e.name, Err: err})
		}
	}
	h.out.Disconnect()
	return errors.Join(errs...)
}

// abort tears down a half-built source and returns the build error.
func (h *Handle) abort(err error) (*Handle, error) {
	_ = h.Teardown()
	return nil, fmt.Errorf("%s: %w", h.name, err)
}

// loopNoise starts a looping noise buffer owned by h.
func (h *Handle) loopNoise(name string, color noise.Color, seconds float64) (*graph.BufferSource, error) {
	buf, err := noise.Generate(color, seconds, h.ctx.SampleRate(), 2)
	if err != nil {
		return nil, err
	}
	src, err := h.ctx.NewBufferSource(buf.Channels, true)
	if err != nil {
		return nil, err
	}
	if err := src.Start(h.ctx.CurrentTime()); err != nil {
		return nil, err
	}
	h.own(name, func() error { return src.Stop(h.ctx.CurrentTime()) })
	return src, nil
}

// oscillator starts a sine oscillator owned by h.
func (h *Handle) oscillator(name string, freq float64) (*graph.Oscillator, error) {
	osc := h.ctx.NewOscillator(freq)
	if err := osc.Start(h.ctx.CurrentTime()); err != nil {
		return nil, err
	}
	h.own(name, func() error { return osc.Stop(h.ctx.CurrentTime()) })
	return osc, nil
}

// modulate attaches m to p until teardown.
func (h *Handle) modulate(name string, p *graph.Param, m graph.Modulator) {
	p.Modulate(m)
	h.own(name, func() error {
		p.ClearModulation()
		return nil
	})
}

// every runs fn periodically until teardown.
func (h *Handle) every(name string, period float64, fn func()) error {
	tm, err := h.ctx.Every(period, fn)
	if err != nil {
		return err
	}
	h.own(name, func() error {
		tm.Stop()
		return nil
	})
	return nil
}

// noiseCutoff softens each plain noise color.
var noiseCutoff = map[noise.Color]float64{
	noise.White: 8000,
	noise.Pink:  4000,
	noise.Brown: 800,
}

// StartNoise plays a looping noise buffer through a low-pass filter.
func StartNoise(ctx *graph.Context, color noise.Color, bus graph.Input) (*Handle, error) {
	cutoff, ok := noiseCutoff[color]
	if !ok {
		return nil, fmt.Errorf("%w: %q", noise.ErrUnsupportedColor, string(color))
	}
	h := newHandle(ctx, string(color), bus)
	lp, err := ctx.NewBiquad(effects.LowPass, cutoff, effects.ButterworthQ, 0)
	if err != nil {
		return h.abort(err)
	}
	src, err := h.loopNoise("noise", color, 4)
	if err != nil {
		return h.abort(err)
	}
	src.Connect(lp)
	lp.Connect(h.out)
	return h, nil
}
