package hushbox

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const testRate = 8000

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithSampleRate(testRate),
		WithoutOutput(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	e, err := New(opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func render(t *testing.T, e *Engine, seconds float64) []float32 {
	t.Helper()
	out, err := e.RenderSeconds(seconds)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out
}

func rms(buf []float32) float64 {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, s := range buf {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s = %v, want %v (±%g)", name, got, want, tol)
	}
}

func TestOperationsBeforeInit(t *testing.T) {
	e, err := New(WithSampleRate(testRate), WithoutOutput())
	if err != nil {
		t.Fatal(err)
	}
	calls := map[string]func() error{
		"Start":            func() error { return e.Start(White) },
		"Stop":             func() error { return e.Stop(White) },
		"SetSourceVolume":  func() error { return e.SetSourceVolume(Rain, 10) },
		"PlayLullaby":      func() error { return e.PlayLullaby(Twinkle) },
		"StopLullaby":      e.StopLullaby,
		"SetLullabyVolume": func() error { return e.SetLullabyVolume(Brahms, 10) },
		"SetMasterVolume":  func() error { return e.SetMasterVolume(10) },
		"PlayAll":          e.PlayAll,
		"PauseAll":         e.PauseAll,
		"SetTimer":         func() error { return e.SetTimer(5) },
		"Render":           func() error { return e.Render(make([]float32, 4)) },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("%s before Init: err = %v, want ErrNotInitialized", name, err)
		}
	}

	buf := []float32{1, 1, 1, 1}
	e.Process(buf)
	if diff := cmp.Diff([]float32{0, 0, 0, 0}, buf); diff != "" {
		t.Fatalf("Process before Init should write silence (-want +got):\n%s", diff)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := e.ctx
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	if e.ctx != ctx {
		t.Fatal("second Init rebuilt the graph")
	}
	approx(t, "initial master", e.MasterGain(), 0.9, 1e-12)
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(WithSampleRate(0)); err == nil {
		t.Fatal("zero sample rate accepted")
	}
	if _, err := New(WithMasterVolume(120)); !errors.Is(err, ErrInvalidVolume) {
		t.Fatalf("err = %v, want ErrInvalidVolume", err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	for _, st := range SoundTypes() {
		t.Run(st.String(), func(t *testing.T) {
			e := newTestEngine(t)
			if err := e.Start(st); err != nil {
				t.Fatal(err)
			}
			if err := e.Start(st); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]SoundType{st}, e.ActiveSources()); diff != "" {
				t.Fatalf("active sources (-want +got):\n%s", diff)
			}
			if n := e.master.Inputs(); n != 1 {
				t.Fatalf("master has %d inputs, want 1", n)
			}
			if level := rms(render(t, e, 0.5)); level < 1e-3 {
				t.Fatalf("%v is silent, rms %g", st, level)
			}
			if err := e.Stop(st); err != nil {
				t.Fatal(err)
			}
			if e.Active(st) || e.master.Inputs() != 0 {
				t.Fatal("stop left the source registered or wired")
			}
		})
	}
}

func TestStopInactiveIsNoop(t *testing.T) {
	e := newTestEngine(t)
	for _, st := range SoundTypes() {
		if err := e.Stop(st); err != nil {
			t.Fatalf("stop %v: %v", st, err)
		}
	}
	if err := e.StopLullaby(); err != nil {
		t.Fatal(err)
	}
}

func TestRejectsUnsupportedInput(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(SoundType(42)); !errors.Is(err, ErrUnsupportedSoundType) {
		t.Fatalf("Start: err = %v", err)
	}
	if err := e.PlayLullaby(SongID(9)); !errors.Is(err, ErrUnsupportedSongID) {
		t.Fatalf("PlayLullaby: err = %v", err)
	}
	if err := e.SetMasterVolume(101); !errors.Is(err, ErrInvalidVolume) {
		t.Fatalf("SetMasterVolume: err = %v", err)
	}
	if err := e.SetSourceVolume(White, math.NaN()); !errors.Is(err, ErrInvalidVolume) {
		t.Fatalf("SetSourceVolume: err = %v", err)
	}
	if err := e.SetTimer(-1); !errors.Is(err, ErrInvalidTimer) {
		t.Fatalf("SetTimer: err = %v", err)
	}
	if _, err := ParseSoundType("violet"); !errors.Is(err, ErrUnsupportedSoundType) {
		t.Fatalf("ParseSoundType: err = %v", err)
	}
	if _, err := ParseSongID("mozart"); !errors.Is(err, ErrUnsupportedSongID) {
		t.Fatalf("ParseSongID: err = %v", err)
	}
}

func TestParseNames(t *testing.T) {
	for _, st := range SoundTypes() {
		got, err := ParseSoundType(" " + st.String() + " ")
		if err != nil || got != st {
			t.Fatalf("ParseSoundType(%q) = %v, %v", st.String(), got, err)
		}
	}
	var names []string
	for _, id := range SongIDs() {
		got, err := ParseSongID(id.String())
		if err != nil || got != id {
			t.Fatalf("ParseSongID(%q) = %v, %v", id.String(), got, err)
		}
		names = append(names, id.String())
	}
	if diff := cmp.Diff([]string{"twinkle", "brahms", "mozzart"}, names); diff != "" {
		t.Fatalf("song names (-want +got):\n%s", diff)
	}
}

func TestSourceVolume(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetSourceVolume(Rain, 20); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(Rain); err != nil {
		t.Fatal(err)
	}
	approx(t, "rain gain at start", e.sources[Rain].gain.Gain.Value(), 0.70*0.2, 1e-12)

	if err := e.Start(Pink); err != nil {
		t.Fatal(err)
	}
	approx(t, "pink default gain", e.sources[Pink].gain.Gain.Value(), 0.65*0.5, 1e-12)
	if err := e.SetSourceVolume(Pink, 100); err != nil {
		t.Fatal(err)
	}
	render(t, e, rampTime+0.01)
	approx(t, "pink gain after ramp", e.sources[Pink].gain.Gain.Value(), 0.65, 1e-12)
	approx(t, "stored volume", e.SourceVolume(Pink), 100, 1e-12)
}

func TestSetMasterVolumeRamps(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetMasterVolume(40); err != nil {
		t.Fatal(err)
	}
	render(t, e, 0.02)
	if g := e.MasterGain(); g <= 0.4 || g >= 0.9 {
		t.Fatalf("master jumped instead of ramping: %v", g)
	}
	render(t, e, 0.05)
	approx(t, "master after ramp", e.MasterGain(), 0.4, 1e-12)
	approx(t, "master volume", e.MasterVolume(), 40, 1e-12)
}

func TestPauseAllRestoresMaster(t *testing.T) {
	e := newTestEngine(t)
	events := e.Watch()
	for _, st := range []SoundType{White, Rain} {
		if err := e.Start(st); err != nil {
			t.Fatal(err)
		}
	}
	render(t, e, 0.2)
	if err := e.PauseAll(); err != nil {
		t.Fatal(err)
	}
	if e.Playing() {
		t.Fatal("still playing after PauseAll")
	}

	render(t, e, 0.5)
	// one frame short of the ramp's end
	approx(t, "master at end of fade", e.MasterGain(), floor, 1e-3)
	if len(e.ActiveSources()) != 2 {
		t.Fatal("sources stopped before the fade completed")
	}

	render(t, e, pauseSettle-0.5)
	if got := e.ActiveSources(); len(got) != 0 {
		t.Fatalf("sources still active after pause: %v", got)
	}
	approx(t, "restored master", e.MasterGain(), 0.9, 1e-12)
	select {
	case ev := <-events:
		if ev.Kind != EventPaused {
			t.Fatalf("event = %v, want paused", ev.Kind)
		}
	default:
		t.Fatal("no paused event")
	}

	if err := e.Start(White); err != nil {
		t.Fatal(err)
	}
	if level := rms(render(t, e, 0.25)); level < 1e-3 {
		t.Fatalf("graph left dead after pause, rms %g", level)
	}
}

func TestPauseAllCutsLullabyAtFloor(t *testing.T) {
	e := newTestEngine(t)
	if err := e.PlayLullaby(Twinkle); err != nil {
		t.Fatal(err)
	}
	render(t, e, 2)
	if err := e.PauseAll(); err != nil {
		t.Fatal(err)
	}
	fade := render(t, e, pauseSettle)
	// the last 50ms sit at floor
	tail := fade[len(fade)-int(0.05*testRate)*2:]
	if level := rms(tail); level > 1e-3 {
		t.Fatalf("fade did not reach floor, rms %g", level)
	}
	if _, ok := e.CurrentLullaby(); ok {
		t.Fatal("lullaby still current after pause")
	}
	if n := e.master.Inputs(); n != 0 {
		t.Fatalf("master has %d inputs after pause, want 0", n)
	}
	if n := e.ctx.PendingTimers(); n != 0 {
		t.Fatalf("pause left %d timers armed", n)
	}
	for i, s := range render(t, e, 0.3) {
		if s != 0 {
			t.Fatalf("sample %d = %v after pause, want silence", i, s)
		}
	}
}

func TestPlayAllAbortsPendingPause(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(Brown); err != nil {
		t.Fatal(err)
	}
	if err := e.PauseAll(); err != nil {
		t.Fatal(err)
	}
	render(t, e, 0.2)
	if err := e.PlayAll(); err != nil {
		t.Fatal(err)
	}
	render(t, e, 1)
	if !e.Active(Brown) || !e.Playing() {
		t.Fatal("PlayAll did not cancel the pause")
	}
	approx(t, "master after resume", e.MasterGain(), 0.9, 1e-12)
}

func TestLullabySwitchLeavesNoStaleLoop(t *testing.T) {
	e := newTestEngine(t)
	if err := e.PlayLullaby(Twinkle); err != nil {
		t.Fatal(err)
	}
	render(t, e, 1)
	old := e.lullaby
	events := e.Watch()
	if err := e.PlayLullaby(Brahms); err != nil {
		t.Fatal(err)
	}
	if id, ok := e.CurrentLullaby(); !ok || id != Brahms {
		t.Fatalf("current = %v, %v; want brahms", id, ok)
	}
	if old.Live() {
		t.Fatal("previous song was not retired")
	}

	render(t, e, old.LoopDuration()+1)
	if !old.Released() {
		t.Fatal("previous song's gain still connected")
	}
	if n := e.master.Inputs(); n != 1 {
		t.Fatalf("master has %d inputs, want only the new song", n)
	}
	if n := e.ctx.PendingTimers(); n != 1 {
		t.Fatalf("pending timers = %d, want only the new song's re-arm", n)
	}
	for len(events) > 0 {
		if ev := <-events; ev.Kind == EventLullabyLoop && ev.Song == Twinkle {
			t.Fatalf("twinkle looped after the switch: %+v", ev)
		}
	}
}

func TestPlayLullabyTwiceIsNoop(t *testing.T) {
	e := newTestEngine(t)
	if err := e.PlayLullaby(Mozart); err != nil {
		t.Fatal(err)
	}
	p := e.lullaby
	if err := e.PlayLullaby(Mozart); err != nil {
		t.Fatal(err)
	}
	if e.lullaby != p || !p.Live() {
		t.Fatal("replaying the current song restarted it")
	}
	if err := e.SetLullabyVolume(Mozart, 100); err != nil {
		t.Fatal(err)
	}
	if target, _ := p.Gain().Gain.Target(); math.Abs(target-lullabyNormalization) > 1e-12 {
		t.Fatalf("lullaby target = %v, want %v", target, lullabyNormalization)
	}
	if err := e.StopLullaby(); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.CurrentLullaby(); ok {
		t.Fatal("lullaby still current after stop")
	}
}

func TestSleepTimer(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(White); err != nil {
		t.Fatal(err)
	}
	render(t, e, 0.5)
	if err := e.SetTimer(1); err != nil {
		t.Fatal(err)
	}
	if got := e.Timer(); got.Minutes != 1 || got.Remaining != time.Minute {
		t.Fatalf("timer = %+v, want 1 minute remaining", got)
	}

	render(t, e, 59)
	ts := e.Timer()
	if ts.Remaining != time.Second || !ts.Fading {
		t.Fatalf("timer at t0+59s = %+v, want 1s remaining and fading", ts)
	}
	target, pending := e.master.Gain.Target()
	if !pending || target >= e.MasterGain() {
		t.Fatalf("master not ramping down: value %v target %v pending %v", e.MasterGain(), target, pending)
	}

	events := e.Watch()
	render(t, e, 1)
	if got := e.ActiveSources(); len(got) != 0 {
		t.Fatalf("sources still active at deadline: %v", got)
	}
	approx(t, "restored master", e.MasterGain(), 0.9, 1e-12)
	if diff := cmp.Diff(TimerState{}, e.Timer()); diff != "" {
		t.Fatalf("timer not cleared (-want +got):\n%s", diff)
	}
	if e.Playing() {
		t.Fatal("still playing after timer expiry")
	}
	if ev := <-events; ev.Kind != EventTimerExpired {
		t.Fatalf("event = %v, want timer-expired", ev.Kind)
	}
	if n := e.ctx.PendingTimers(); n != 0 {
		t.Fatalf("timer left %d timers armed", n)
	}
}

func TestSleepTimerFinalFade(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(Ocean); err != nil {
		t.Fatal(err)
	}
	if err := e.SetTimer(1); err != nil {
		t.Fatal(err)
	}
	render(t, e, 59.5)
	// A late volume change pulls the master back up off the fade.
	if err := e.SetMasterVolume(90); err != nil {
		t.Fatal(err)
	}
	render(t, e, 0.5)
	if !e.Active(Ocean) {
		t.Fatal("stopped at the deadline without the final fade")
	}
	if target, _ := e.master.Gain.Target(); target != floor {
		t.Fatalf("final fade target = %v, want %v", target, floor)
	}
	render(t, e, finalFade)
	if e.Active(Ocean) || e.Timer().Minutes != 0 {
		t.Fatal("final fade did not stop everything")
	}
	approx(t, "restored master", e.MasterGain(), 0.9, 1e-12)
}

func TestSleepTimerCutsFadingLullabies(t *testing.T) {
	e := newTestEngine(t)
	if err := e.PlayLullaby(Twinkle); err != nil {
		t.Fatal(err)
	}
	if err := e.SetTimer(1); err != nil {
		t.Fatal(err)
	}
	render(t, e, 59.9)
	// Twinkle is still in its own fade when the timer runs out.
	if err := e.PlayLullaby(Brahms); err != nil {
		t.Fatal(err)
	}
	events := e.Watch()
	render(t, e, 0.2)
	if ev := <-events; ev.Kind != EventTimerExpired {
		t.Fatalf("event = %v, want timer-expired", ev.Kind)
	}
	if n := e.master.Inputs(); n != 0 {
		t.Fatalf("master has %d inputs after expiry, want 0", n)
	}
	if n := e.ctx.PendingTimers(); n != 0 {
		t.Fatalf("expiry left %d timers armed", n)
	}
	approx(t, "restored master", e.MasterGain(), 0.9, 1e-12)
	if level := rms(render(t, e, 0.3)); level != 0 {
		t.Fatalf("audible after timer expiry, rms %g", level)
	}
}

func TestClearingTimerRestoresMaster(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetTimer(1); err != nil {
		t.Fatal(err)
	}
	render(t, e, 45)
	if g := e.MasterGain(); g >= 0.9 {
		t.Fatalf("master %v not fading 15 s before the deadline", g)
	}
	if err := e.SetTimer(0); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(TimerState{}, e.Timer()); diff != "" {
		t.Fatalf("timer not cleared (-want +got):\n%s", diff)
	}
	render(t, e, rampTime+0.01)
	approx(t, "master after clear", e.MasterGain(), 0.9, 1e-12)
	if n := e.ctx.PendingTimers(); n != 0 {
		t.Fatalf("cleared timer left %d timers armed", n)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(Heartbeat); err != nil {
		t.Fatal(err)
	}
	if err := e.PlayLullaby(Twinkle); err != nil {
		t.Fatal(err)
	}
	if err := e.SetTimer(5); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if len(e.ActiveSources()) != 0 || e.Timer().Minutes != 0 || e.Playing() {
		t.Fatal("close left engine state behind")
	}
	if _, ok := e.CurrentLullaby(); ok {
		t.Fatal("close left the lullaby current")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestClosedEngineRejectsCalls(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(Pink); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	calls := map[string]func() error{
		"Init":        e.Init,
		"Start":       func() error { return e.Start(White) },
		"PlayLullaby": func() error { return e.PlayLullaby(Mozart) },
		"SetTimer":    func() error { return e.SetTimer(5) },
		"PauseAll":    e.PauseAll,
		"Render":      func() error { return e.Render(make([]float32, 4)) },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrClosed) {
			t.Errorf("%s after Close: err = %v, want ErrClosed", name, err)
		}
	}
	buf := []float32{1, 1, 1, 1}
	e.Process(buf)
	if diff := cmp.Diff([]float32{0, 0, 0, 0}, buf); diff != "" {
		t.Fatalf("Process after Close should write silence (-want +got):\n%s", diff)
	}
}
