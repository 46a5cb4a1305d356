package graph

import (
	"fmt"
	"math"

	"github.com/cbegin/hushbox-go/internal/effects"
)

// outlet is the single outgoing connection a node may have.
type outlet struct {
	self Node
	dst  Input
}

// Connect routes the node into dst, leaving any previous destination.
func (o *outlet) Connect(dst Input) {
	if o.dst == dst {
		return
	}
	if o.dst != nil {
		o.dst.detach(o.self)
	}
	o.dst = dst
	if dst != nil {
		dst.attach(o.self)
	}
}

// Disconnect removes the outgoing connection. It reports whether there was
// one; disconnecting twice is a no-op.
func (o *outlet) Disconnect() bool {
	if o.dst == nil {
		return false
	}
	o.dst.detach(o.self)
	o.dst = nil
	return true
}

func (o *outlet) Connected() bool { return o.dst != nil }

// ender is implemented by scheduled sources; mixers prune them once finished.
type ender interface {
	endedBy(frame int64) bool
	unlink()
}

// mixer sums its inputs.
type mixer struct {
	inputs  []Node
	scratch []float32
}

func (m *mixer) attach(n Node) {
	for _, in := range m.inputs {
		if in == n {
			return
		}
	}
	m.inputs = append(m.inputs, n)
}

func (m *mixer) detach(n Node) {
	for i, in := range m.inputs {
		if in == n {
			m.inputs = append(m.inputs[:i], m.inputs[i+1:]...)
			return
		}
	}
}

func (m *mixer) mix(frame int64, dst []float32) {
	clear(dst)
	if len(m.inputs) == 0 {
		return
	}
	if cap(m.scratch) < len(dst) {
		m.scratch = make([]float32, len(dst))
	}
	buf := m.scratch[:len(dst)]
	for _, in := range m.inputs {
		in.Process(frame, buf)
		for i, s := range buf {
			dst[i] += s
		}
	}
	end := frame + int64(len(dst)/2)
	kept := m.inputs[:0]
	for _, in := range m.inputs {
		if e, ok := in.(ender); ok && e.endedBy(end) {
			e.unlink()
			continue
		}
		kept = append(kept, in)
	}
	clear(m.inputs[len(kept):])
	m.inputs = kept
}

// Gain sums its inputs and scales them by an automatable gain.
type Gain struct {
	outlet
	mixer
	ctx   *Context
	Gain  *Param
	gains []float64
}

func (c *Context) NewGain(v float64) *Gain {
	g := &Gain{ctx: c, Gain: newParam(c, v)}
	g.self = g
	return g
}

// Inputs reports how many nodes feed this stage.
func (g *Gain) Inputs() int { return len(g.inputs) }

func (g *Gain) Process(frame int64, dst []float32) {
	g.mix(frame, dst)
	n := len(dst) / 2
	if cap(g.gains) < n {
		g.gains = make([]float64, n)
	}
	gains := g.gains[:n]
	g.Gain.fill(frame, gains)
	for i, k := range gains {
		dst[2*i] *= float32(k)
		dst[2*i+1] *= float32(k)
	}
}

// Filter runs the sum of its inputs through a stereo effect.
type Filter struct {
	outlet
	mixer
	fx effects.Effector
}

func (c *Context) NewFilter(fx effects.Effector) *Filter {
	f := &Filter{fx: fx}
	f.self = f
	return f
}

// NewBiquad is shorthand for a filter node around an RBJ biquad.
func (c *Context) NewBiquad(typ effects.FilterType, freq, q, gainDB float64) (*Filter, error) {
	b, err := effects.NewBiquad(c.sampleRate, typ, freq, q, gainDB)
	if err != nil {
		return nil, err
	}
	return c.NewFilter(b), nil
}

func (f *Filter) Process(frame int64, dst []float32) {
	f.mix(frame, dst)
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i], dst[i+1] = f.fx.Process(dst[i], dst[i+1])
	}
}

// lifetime tracks start/stop scheduling for sources.
type lifetime struct {
	ctx     *Context
	started bool
	start   int64
	stop    int64 // -1 until Stop
}

func (l *lifetime) doStart(t float64) error {
	if !validTime(t) {
		return fmt.Errorf("%w: start %v", ErrInvalidTime, t)
	}
	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true
	l.start = l.ctx.FrameAt(t)
	l.stop = -1
	return nil
}

// doStop reports whether the stop takes effect immediately.
func (l *lifetime) doStop(t float64) (bool, error) {
	if !validTime(t) {
		return false, fmt.Errorf("%w: stop %v", ErrInvalidTime, t)
	}
	if !l.started {
		return false, ErrNotStarted
	}
	if l.stop >= 0 && l.stop <= l.ctx.frame {
		return false, nil
	}
	f := l.ctx.FrameAt(t)
	if f < l.start {
		f = l.start
	}
	if f < l.ctx.frame {
		f = l.ctx.frame
	}
	if l.stop >= 0 && l.stop < f {
		f = l.stop
	}
	l.stop = f
	return f <= l.ctx.frame, nil
}

func (l *lifetime) playing(f int64) bool {
	return l.started && f >= l.start && (l.stop < 0 || f < l.stop)
}

func (l *lifetime) endedBy(frame int64) bool {
	return l.started && l.stop >= 0 && frame >= l.stop
}

// Ended reports whether the source has stopped for good.
func (l *lifetime) Ended() bool { return l.endedBy(l.ctx.frame) }

// Oscillator is a sine source with automatable frequency and amplitude and a
// fixed detune in cents.
type Oscillator struct {
	outlet
	lifetime
	Frequency *Param
	Amplitude *Param
	detune    float64
	phase     float64
	freqs     []float64
	amps      []float64
}

func (c *Context) NewOscillator(freq float64) *Oscillator {
	o := &Oscillator{
		lifetime:  lifetime{ctx: c, stop: -1},
		Frequency: newParam(c, freq),
		Amplitude: newParam(c, 1),
	}
	o.self = o
	return o
}

// SetDetune shifts the pitch by cents.
func (o *Oscillator) SetDetune(cents float64) { o.detune = cents }

func (o *Oscillator) Start(t float64) error { return o.doStart(t) }

// Stop ends the oscillator at t. Stopping an already ended oscillator is a
// no-op; an immediate stop drops pending frequency and amplitude automation.
func (o *Oscillator) Stop(t float64) error {
	now, err := o.doStop(t)
	if err != nil {
		return err
	}
	if now {
		o.Frequency.CancelAndHold()
		o.Amplitude.CancelAndHold()
	}
	return nil
}

func (o *Oscillator) unlink() { o.dst = nil }

func (o *Oscillator) Process(frame int64, dst []float32) {
	n := len(dst) / 2
	end := frame + int64(n)
	if !o.started || end <= o.start || (o.stop >= 0 && frame >= o.stop) {
		clear(dst)
		return
	}
	if cap(o.freqs) < n {
		o.freqs = make([]float64, n)
		o.amps = make([]float64, n)
	}
	freqs, amps := o.freqs[:n], o.amps[:n]
	o.Frequency.fill(frame, freqs)
	o.Amplitude.fill(frame, amps)
	sr := float64(o.ctx.sampleRate)
	ratio := math.Exp2(o.detune / 1200)
	for i := 0; i < n; i++ {
		if !o.playing(frame + int64(i)) {
			dst[2*i], dst[2*i+1] = 0, 0
			continue
		}
		s := float32(math.Sin(2*math.Pi*o.phase) * amps[i])
		dst[2*i], dst[2*i+1] = s, s
		o.phase += freqs[i] * ratio / sr
		o.phase -= math.Floor(o.phase)
	}
}

// BufferSource plays a fixed multichannel buffer, optionally looping. Mono
// buffers feed both channels; channels past the second are ignored.
type BufferSource struct {
	outlet
	lifetime
	left, right []float32
	loop        bool
	pos         int
}

func (c *Context) NewBufferSource(channels [][]float32, loop bool) (*BufferSource, error) {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil, fmt.Errorf("graph: empty buffer")
	}
	for i, ch := range channels {
		if len(ch) != len(channels[0]) {
			return nil, fmt.Errorf("graph: channel %d has %d samples, want %d", i, len(ch), len(channels[0]))
		}
	}
	b := &BufferSource{lifetime: lifetime{ctx: c, stop: -1}, left: channels[0], right: channels[0], loop: loop}
	if len(channels) > 1 {
		b.right = channels[1]
	}
	b.self = b
	return b, nil
}

func (b *BufferSource) Start(t float64) error { return b.doStart(t) }

// Stop ends playback at t; stopping an ended source is a no-op.
func (b *BufferSource) Stop(t float64) error {
	_, err := b.doStop(t)
	return err
}

func (b *BufferSource) Loop() bool { return b.loop }

func (b *BufferSource) unlink() { b.dst = nil }

func (b *BufferSource) Process(frame int64, dst []float32) {
	n := len(dst) / 2
	for i := 0; i < n; i++ {
		f := frame + int64(i)
		if !b.playing(f) {
			dst[2*i], dst[2*i+1] = 0, 0
			continue
		}
		if b.pos >= len(b.left) {
			if !b.loop {
				b.stop = f
				dst[2*i], dst[2*i+1] = 0, 0
				continue
			}
			b.pos = 0
		}
		dst[2*i], dst[2*i+1] = b.left[b.pos], b.right[b.pos]
		b.pos++
	}
}
