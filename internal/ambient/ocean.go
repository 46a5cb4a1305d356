package ambient

import (
	"github.com/cbegin/hushbox-go/internal/effects"
	"github.com/cbegin/hushbox-go/internal/graph"
	"github.com/cbegin/hushbox-go/internal/lfo"
	"github.com/cbegin/hushbox-go/internal/noise"
)

const (
	swellRate  = 0.12 // Hz, shared by both layers so they breathe together
	waveDepth  = 0.4
	foamLevel  = 0.08
	foamDepth  = 0.06
	waveCutoff = 600
)

// StartOcean swells low-passed brown noise with a slow sine and rides a thin
// band of white-noise foam on the same period.
func StartOcean(ctx *graph.Context, bus graph.Input) (*Handle, error) {
	h := newHandle(ctx, "ocean", bus)

	lp, err := ctx.NewBiquad(effects.LowPass, waveCutoff, effects.ButterworthQ, 0)
	if err != nil {
		return h.abort(err)
	}
	foamBP, err := ctx.NewBiquad(effects.BandPass, 3000, 0.3, 0)
	if err != nil {
		return h.abort(err)
	}

	waves, err := h.loopNoise("waves", noise.Brown, 6)
	if err != nil {
		return h.abort(err)
	}
	waveGain := ctx.NewGain(1)
	h.modulate("wave swell", waveGain.Gain, lfo.New(swellRate, waveDepth))
	waves.Connect(lp)
	lp.Connect(waveGain)
	waveGain.Connect(h.out)

	foam, err := h.loopNoise("foam", noise.White, 4)
	if err != nil {
		return h.abort(err)
	}
	foamGain := ctx.NewGain(foamLevel)
	h.modulate("foam swell", foamGain.Gain, lfo.New(swellRate, foamDepth))
	foam.Connect(foamBP)
	foamBP.Connect(foamGain)
	foamGain.Connect(h.out)
	return h, nil
}
