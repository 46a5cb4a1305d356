package ambient

import (
	"github.com/cbegin/hushbox-go/internal/graph"
)

// BeatPeriod is the retrigger interval, about 75 bpm.
const BeatPeriod = 0.8

type stepKind int

const (
	stepSet stepKind = iota
	stepLinear
	stepExp
)

// step is one envelope point, at seconds after the trigger.
type step struct {
	kind  stepKind
	at    float64
	value float64
}

// lubDub is the two-pulse envelope: a full pulse then a softer one.
var lubDub = []step{
	{stepSet, 0, 0},
	{stepLinear, 0.03, 1.0},
	{stepExp, 0.15, 0.001},
	{stepSet, 0.18, 0},
	{stepLinear, 0.21, 0.7},
	{stepExp, 0.35, 0.001},
}

// apply schedules steps from t0. Step values are constants checked by the
// tests, so scheduling cannot fail for a valid t0.
func apply(p *graph.Param, steps []step, t0 float64) {
	for _, s := range steps {
		switch s.kind {
		case stepSet:
			_ = p.SetValueAtTime(s.value, t0+s.at)
		case stepLinear:
			_ = p.LinearRampToValueAtTime(s.value, t0+s.at)
		case stepExp:
			_ = p.ExponentialRampToValueAtTime(s.value, t0+s.at)
		}
	}
}

type heartbeat struct {
	ctx  *graph.Context
	gate *graph.Gain
	// observed by tests
	beats int
	last  float64
}

// trigger restarts the envelope. Pending automation is cancelled first so a
// late pulse never overlaps a new one.
func (hb *heartbeat) trigger() {
	now := hb.ctx.CurrentTime()
	hb.gate.Gain.CancelScheduledValues(now)
	apply(hb.gate.Gain, lubDub, now)
	hb.beats++
	hb.last = now
}

// StartHeartbeat gates two low sines (55 Hz and a quieter 45 Hz) with a
// lub-dub envelope every BeatPeriod.
func StartHeartbeat(ctx *graph.Context, bus graph.Input) (*Handle, error) {
	h, _, err := startHeartbeat(ctx, bus)
	return h, err
}

func startHeartbeat(ctx *graph.Context, bus graph.Input) (*Handle, *heartbeat, error) {
	h := newHandle(ctx, "heartbeat", bus)
	hb := &heartbeat{ctx: ctx, gate: ctx.NewGain(0)}
	hb.gate.Connect(h.out)
	h.own("gate", func() error {
		hb.gate.Gain.CancelAndHold()
		return nil
	})

	body, err := h.oscillator("body", 55)
	if err != nil {
		h, err = h.abort(err)
		return h, nil, err
	}
	sub, err := h.oscillator("sub", 45)
	if err != nil {
		h, err = h.abort(err)
		return h, nil, err
	}
	subGain := ctx.NewGain(0.5)
	body.Connect(hb.gate)
	sub.Connect(subGain)
	subGain.Connect(hb.gate)

	hb.trigger()
	if err := h.every("pulse", BeatPeriod, hb.trigger); err != nil {
		h, err = h.abort(err)
		return h, nil, err
	}
	return h, hb, nil
}
