package graph

import (
	"container/heap"
	"fmt"
)

// Timer is a callback scheduled on the audio clock. Callbacks run inside
// Render, between sub-blocks, so they may freely rewire the graph.
type Timer struct {
	ctx     *Context
	frame   int64
	period  int64
	seq     uint64
	index   int
	stopped bool
	fn      func()
}

// At schedules fn at absolute time t. A time already past fires on the next
// Render.
func (c *Context) At(t float64, fn func()) (*Timer, error) {
	if !validTime(t) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTime, t)
	}
	tm := &Timer{ctx: c, frame: c.FrameAt(t), fn: fn, index: -1}
	c.push(tm)
	return tm, nil
}

// After schedules fn delay seconds from now.
func (c *Context) After(delay float64, fn func()) (*Timer, error) {
	if !validTime(delay) {
		return nil, fmt.Errorf("%w: delay %v", ErrInvalidTime, delay)
	}
	return c.At(c.CurrentTime()+delay, fn)
}

// Every schedules fn each period seconds, first one period from now. The
// schedule is kept in frames so it never drifts.
func (c *Context) Every(period float64, fn func()) (*Timer, error) {
	if !validTime(period) {
		return nil, fmt.Errorf("%w: period %v", ErrInvalidTime, period)
	}
	p := c.FrameAt(period)
	if p <= 0 {
		return nil, fmt.Errorf("%w: period %v shorter than one frame", ErrInvalidTime, period)
	}
	tm := &Timer{ctx: c, frame: c.frame + p, period: p, fn: fn, index: -1}
	c.push(tm)
	return tm, nil
}

// Stop cancels the timer. It reports whether a pending fire was cancelled;
// stopping twice is a no-op. A periodic timer may stop itself from its
// callback.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped {
		return false
	}
	t.stopped = true
	if t.index >= 0 {
		heap.Remove(&t.ctx.timers, t.index)
		return true
	}
	return false
}

// When returns the time of the next fire.
func (t *Timer) When() float64 { return t.ctx.TimeAt(t.frame) }

// Stopped reports whether Stop was called.
func (t *Timer) Stopped() bool { return t.stopped }

type timerQueue []*Timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].frame != q[j].frame {
		return q[i].frame < q[j].frame
	}
	return q[i].seq < q[j].seq
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*Timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

func (q timerQueue) peek() (int64, bool) {
	if len(q) == 0 {
		return 0, false
	}
	return q[0].frame, true
}
