package hushbox

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cbegin/hushbox-go/internal/graph"
)

const (
	// fadeWindow is how long before the deadline the master starts fading.
	fadeWindow = 30.0
	// finalFade is used when the master is not yet at floor at the deadline.
	finalFade = 2.0
)

// sleepTimer is the countdown state. deadline is a frame on the audio clock.
type sleepTimer struct {
	minutes  int
	armed    bool
	deadline int64
	tick     *graph.Timer
	finish   *graph.Timer
	fading   bool
}

// TimerState describes the sleep timer. Minutes is zero when no timer is set.
type TimerState struct {
	Minutes   int
	Remaining time.Duration
	Fading    bool
}

// SetTimer arms the sleep timer for minutes, replacing any previous one; 0
// clears it. The master fades over the last 30 seconds and reaches the floor
// at the deadline, where everything is stopped as by PauseAll and the master
// level is restored.
func (e *Engine) SetTimer(minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimer, minutes)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	e.clearTimerLocked(true)
	if minutes == 0 {
		return nil
	}
	tick, err := e.ctx.Every(1, e.timerTick)
	if err != nil {
		return err
	}
	e.timer = sleepTimer{
		minutes:  minutes,
		armed:    true,
		deadline: e.ctx.Frame() + e.ctx.FrameAt(float64(minutes)*60),
		tick:     tick,
	}
	e.log.Debug("timer set", slog.Int("minutes", minutes))
	return nil
}

// Timer reports the sleep timer state.
func (e *Engine) Timer() TimerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.timer.armed {
		return TimerState{}
	}
	return TimerState{
		Minutes:   e.timer.minutes,
		Remaining: e.remaining(),
		Fading:    e.timer.fading,
	}
}

func (e *Engine) remaining() time.Duration {
	frames := max(e.timer.deadline-e.ctx.Frame(), 0)
	return time.Duration(float64(frames) / float64(e.ctx.SampleRate()) * float64(time.Second))
}

// clearTimerLocked drops the timer. With restore set, a master level the
// timer had faded is ramped back.
func (e *Engine) clearTimerLocked(restore bool) {
	t := e.timer
	t.tick.Stop()
	t.finish.Stop()
	e.timer = sleepTimer{}
	if restore && t.fading && e.pendingPause == nil {
		if err := e.rampMaster(e.masterVolume, rampTime); err != nil {
			e.log.Warn("restore master", slog.Any("err", err))
		}
	}
}

// timerTick runs once per second on the render path.
func (e *Engine) timerTick() {
	left := e.timer.deadline - e.ctx.Frame()
	if left <= 0 {
		e.timerExpired()
		return
	}
	secs := float64(left) / float64(e.ctx.SampleRate())
	remaining := e.remaining()
	if secs <= fadeWindow && e.pendingPause == nil {
		// Aim one second ahead so the last tick lands on floor at the deadline.
		target := math.Max(floor, e.masterVolume*(secs-1)/fadeWindow)
		if err := e.rampMaster(target, 1); err != nil {
			e.log.Warn("timer fade", slog.Any("err", err))
		}
		e.timer.fading = true
	}
	e.sendEvent(Event{Kind: EventTimerTick, Remaining: remaining})
}

func (e *Engine) timerExpired() {
	e.timer.tick.Stop()
	e.timer.fading = true
	target, _ := e.master.Gain.Target()
	if target <= floor*(1+1e-9) {
		e.finishTimer()
		return
	}
	if err := e.rampMaster(floor, finalFade); err != nil {
		e.log.Warn("timer fade", slog.Any("err", err))
	}
	tm, err := e.ctx.After(finalFade, e.finishTimer)
	if err != nil {
		e.log.Warn("timer finish", slog.Any("err", err))
		e.finishTimer()
		return
	}
	e.timer.finish = tm
}

func (e *Engine) finishTimer() {
	e.clearTimerLocked(false)
	if e.pendingPause != nil {
		e.pendingPause.Stop()
		e.pendingPause = nil
	}
	e.stopAllLocked()
	if err := e.master.Gain.SetValue(e.masterVolume); err != nil {
		e.log.Warn("restore master", slog.Any("err", err))
	}
	e.playing = false
	e.log.Info("sleep timer expired")
	e.sendEvent(Event{Kind: EventTimerExpired})
}
