package lullaby

import (
	"fmt"
	"math"

	"github.com/cbegin/hushbox-go/internal/graph"
)

const (
	// LeadIn delays the first pass so its first attack is not clipped.
	LeadIn = 0.05
	// FadeOut is how long a retired playback takes to reach Floor.
	FadeOut = 0.3
	// ReleaseDelay is when a retired playback is cut and disconnected.
	ReleaseDelay = 0.5
)

type Options struct {
	// OnLoop runs inside render each time a new pass is armed, with the
	// number of passes started so far.
	OnLoop func(passes int)
	// OnFault receives scheduling and release errors. Nothing in the render
	// path returns them.
	OnFault func(error)
}

// Playback loops one score into its own gain stage until retired.
type Playback struct {
	ctx     *graph.Context
	score   Score
	gain    *graph.Gain
	opts    Options
	rearm   *graph.Timer
	cut     *graph.Timer
	passes  []*Pass
	loops   int
	retired bool
}

// Start connects a new gain stage at level to bus and arms the first pass
// LeadIn seconds from now. Every pass arms the next one to start exactly when
// it ends.
func Start(ctx *graph.Context, bus graph.Input, score Score, level float64, opts Options) (*Playback, error) {
	if err := score.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(level) || math.IsInf(level, 0) || level < 0 {
		return nil, fmt.Errorf("%w: level %v", graph.ErrInvalidValue, level)
	}
	p := &Playback{ctx: ctx, score: score, gain: ctx.NewGain(level), opts: opts}
	p.gain.Connect(bus)
	if err := p.play(ctx.CurrentTime() + LeadIn); err != nil {
		p.gain.Disconnect()
		return nil, err
	}
	return p, nil
}

// play schedules a pass at start and arms the next one.
func (p *Playback) play(start float64) error {
	pass, err := PlayOnce(p.ctx, p.gain, p.score, start)
	if err != nil {
		return err
	}
	live := p.passes[:0]
	for _, q := range p.passes {
		if q.Live() {
			live = append(live, q)
		}
	}
	clear(p.passes[len(live):])
	p.passes = append(live, pass)
	p.loops++

	next := pass.End()
	p.rearm, err = p.ctx.At(next, func() { p.fire(next) })
	if err != nil {
		return err
	}
	if p.opts.OnLoop != nil {
		p.opts.OnLoop(p.loops)
	}
	return nil
}

// fire is the re-arm callback. The retired check makes a timer that outlived
// its playback harmless.
func (p *Playback) fire(start float64) {
	if p.retired {
		return
	}
	if err := p.play(start); err != nil {
		p.fault(fmt.Errorf("lullaby: %s: re-arm: %w", p.score.Name, err))
	}
}

func (p *Playback) fault(err error) {
	if p.opts.OnFault != nil {
		p.opts.OnFault(err)
	}
}

// Retire stops the loop: the re-arm is cancelled, the gain fades to Floor
// over FadeOut, and after ReleaseDelay every voice still in flight is cut and
// the gain disconnected. Retiring twice is a no-op.
func (p *Playback) Retire() {
	if p.retired {
		return
	}
	p.retired = true
	p.rearm.Stop()
	g := p.gain.Gain
	g.CancelAndHold()
	if err := g.LinearRampToValueAtTime(Floor, p.ctx.CurrentTime()+FadeOut); err != nil {
		p.fault(err)
	}
	tm, err := p.ctx.After(ReleaseDelay, p.release)
	if err != nil {
		p.fault(err)
		p.release()
		return
	}
	p.cut = tm
}

// Cut stops the loop at once: the re-arm is cancelled, every voice is cut
// and the gain disconnected with no fade. It is for callers that have already
// faded the output to silence. A release pending from Retire is dropped.
func (p *Playback) Cut() {
	p.retired = true
	p.rearm.Stop()
	p.cut.Stop()
	p.release()
}

func (p *Playback) release() {
	for _, pass := range p.passes {
		if err := pass.Stop(p.ctx); err != nil {
			p.fault(fmt.Errorf("lullaby: %s: release: %w", p.score.Name, err))
		}
	}
	p.passes = nil
	p.gain.Disconnect()
}

// SetLevel ramps the playback gain to level over d seconds, replacing any
// pending ramp. A retired playback ignores it.
func (p *Playback) SetLevel(level, d float64) error {
	if p.retired {
		return nil
	}
	return p.gain.Gain.RampTo(level, d)
}

func (p *Playback) Score() Score      { return p.score }
func (p *Playback) Gain() *graph.Gain { return p.gain }

// Loops counts the passes started so far.
func (p *Playback) Loops() int { return p.loops }

// LoopDuration is the length of one pass.
func (p *Playback) LoopDuration() float64 { return p.score.Duration() }

// Live reports whether the playback has not been retired.
func (p *Playback) Live() bool { return !p.retired }

// Released reports whether a retired playback has let go of its gain stage.
func (p *Playback) Released() bool { return p.retired && !p.gain.Connected() }
