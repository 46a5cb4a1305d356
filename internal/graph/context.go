// Package graph is a small pull-based signal graph. A Context owns a frame
// clock, a destination gain stage and a timer queue clocked by rendered
// frames. Nodes write stereo interleaved float32 frames.
//
// Nothing in this package locks; the owner serializes Render against every
// other call.
package graph

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidTime    = errors.New("graph: invalid time")
	ErrInvalidValue   = errors.New("graph: invalid value")
	ErrNotStarted     = errors.New("graph: node was never started")
	ErrAlreadyStarted = errors.New("graph: node already started")
)

// Node produces audio. Process overwrites dst, which holds len(dst)/2 stereo
// frames beginning at frame.
type Node interface {
	Process(frame int64, dst []float32)
}

// Input is a node that accepts connections.
type Input interface {
	Node
	attach(n Node)
	detach(n Node)
}

type Context struct {
	sampleRate int
	frame      int64
	dest       *Gain
	timers     timerQueue
	seq        uint64
}

func NewContext(sampleRate int) (*Context, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("graph: sample rate must be positive, got %d", sampleRate)
	}
	c := &Context{sampleRate: sampleRate}
	c.dest = c.NewGain(1)
	return c, nil
}

func (c *Context) SampleRate() int { return c.sampleRate }

// Frame returns the number of frames rendered so far.
func (c *Context) Frame() int64 { return c.frame }

// CurrentTime returns the audio clock in seconds.
func (c *Context) CurrentTime() float64 { return c.TimeAt(c.frame) }

func (c *Context) TimeAt(frame int64) float64 {
	return float64(frame) / float64(c.sampleRate)
}

// FrameAt converts seconds to the nearest frame.
func (c *Context) FrameAt(t float64) int64 {
	return int64(math.Round(t * float64(c.sampleRate)))
}

// Destination is the final gain stage; everything audible connects here.
func (c *Context) Destination() *Gain { return c.dest }

// Render fills dst with len(dst)/2 stereo frames. Blocks are split at timer
// frames so timers fire between samples exactly where they were scheduled.
// Timers due at the end of the rendered span fire before Render returns.
func (c *Context) Render(dst []float32) {
	frames := len(dst) / 2
	pos := 0
	c.fireDue()
	for pos < frames {
		n := frames - pos
		if next, ok := c.timers.peek(); ok {
			if d := next - c.frame; d > 0 && d < int64(n) {
				n = int(d)
			}
		}
		c.dest.Process(c.frame, dst[pos*2:(pos+n)*2])
		c.frame += int64(n)
		pos += n
		c.fireDue()
	}
}

func (c *Context) fireDue() {
	for len(c.timers) > 0 && c.timers[0].frame <= c.frame {
		t := heap.Pop(&c.timers).(*Timer)
		t.fn()
		if t.period > 0 && !t.stopped {
			t.frame += t.period
			c.push(t)
		}
	}
}

func (c *Context) push(t *Timer) {
	c.seq++
	t.seq = c.seq
	heap.Push(&c.timers, t)
}

// PendingTimers reports how many timers are queued.
func (c *Context) PendingTimers() int { return len(c.timers) }

func validTime(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0) && t >= 0
}

func validValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
