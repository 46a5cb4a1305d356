package ambient

import (
	"github.com/cbegin/hushbox-go/internal/effects"
	"github.com/cbegin/hushbox-go/internal/graph"
	"github.com/cbegin/hushbox-go/internal/noise"
)

const thunderLevel = 0.25

// StartRain layers band-passed white noise (the drops, with the top end shelved
// down) over a low-passed brown rumble.
func StartRain(ctx *graph.Context, bus graph.Input) (*Handle, error) {
	h := newHandle(ctx, "rain", bus)

	sr := ctx.SampleRate()
	bp, err := effects.NewBiquad(sr, effects.BandPass, 2500, 0.5, 0)
	if err != nil {
		return h.abort(err)
	}
	shelf, err := effects.NewBiquad(sr, effects.HighShelf, 5000, effects.ButterworthQ, -6)
	if err != nil {
		return h.abort(err)
	}
	dropsFX := ctx.NewFilter(effects.NewChain(bp, shelf))
	thunderLP, err := ctx.NewBiquad(effects.LowPass, 200, effects.ButterworthQ, 0)
	if err != nil {
		return h.abort(err)
	}

	drops, err := h.loopNoise("drops", noise.White, 4)
	if err != nil {
		return h.abort(err)
	}
	drops.Connect(dropsFX)
	dropsFX.Connect(h.out)

	thunder, err := h.loopNoise("thunder", noise.Brown, 4)
	if err != nil {
		return h.abort(err)
	}
	thunderGain := ctx.NewGain(thunderLevel)
	thunder.Connect(thunderLP)
	thunderLP.Connect(thunderGain)
	thunderGain.Connect(h.out)
	return h, nil
}
