package ambient

import (
	"errors"
	"math"
	"testing"

	"github.com/cbegin/hushbox-go/internal/graph"
	"github.com/cbegin/hushbox-go/internal/noise"
)

const testRate = 8000

func newBus(t *testing.T) (*graph.Context, *graph.Gain) {
	t.Helper()
	ctx, err := graph.NewContext(testRate)
	if err != nil {
		t.Fatal(err)
	}
	bus := ctx.NewGain(1)
	bus.Connect(ctx.Destination())
	return ctx, bus
}

func renderSeconds(ctx *graph.Context, seconds float64) []float32 {
	buf := make([]float32, int(seconds*testRate)*2)
	for off := 0; off < len(buf); off += 512 {
		end := min(off+512, len(buf))
		ctx.Render(buf[off:end])
	}
	return buf
}

func rms(buf []float32) float64 {
	var sum float64
	for _, s := range buf {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func TestSourcesProduceAudioAndTearDown(t *testing.T) {
	cases := []struct {
		name  string
		start func(*graph.Context, graph.Input) (*Handle, error)
	}{
		{"white", func(c *graph.Context, b graph.Input) (*Handle, error) { return StartNoise(c, noise.White, b) }},
		{"pink", func(c *graph.Context, b graph.Input) (*Handle, error) { return StartNoise(c, noise.Pink, b) }},
		{"brown", func(c *graph.Context, b graph.Input) (*Handle, error) { return StartNoise(c, noise.Brown, b) }},
		{"rain", StartRain},
		{"ocean", StartOcean},
		{"heartbeat", StartHeartbeat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, bus := newBus(t)
			h, err := tc.start(ctx, bus)
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			if h.Name() != tc.name {
				t.Fatalf("name = %q, want %q", h.Name(), tc.name)
			}
			if bus.Inputs() != 1 || !h.Output().Connected() {
				t.Fatal("source output not wired to bus")
			}
			if level := rms(renderSeconds(ctx, 1)); level < 1e-3 {
				t.Fatalf("source is silent, rms %g", level)
			}
			if err := h.Teardown(); err != nil {
				t.Fatalf("teardown: %v", err)
			}
			if h.Live() || bus.Inputs() != 0 || h.Output().Connected() {
				t.Fatal("teardown left the source wired")
			}
			if err := h.Teardown(); err != nil {
				t.Fatalf("second teardown should be a no-op, got %v", err)
			}
			if n := ctx.PendingTimers(); n != 0 {
				t.Fatalf("teardown left %d timers armed", n)
			}
			if level := rms(renderSeconds(ctx, 0.25)); level != 0 {
				t.Fatalf("bus not silent after teardown, rms %g", level)
			}
		})
	}
}

func TestStartNoiseRejectsUnknownColor(t *testing.T) {
	ctx, bus := newBus(t)
	if _, err := StartNoise(ctx, "violet", bus); !errors.Is(err, noise.ErrUnsupportedColor) {
		t.Fatalf("err = %v, want ErrUnsupportedColor", err)
	}
	if bus.Inputs() != 0 {
		t.Fatal("failed start left nodes on the bus")
	}
}

func TestTeardownIsolatesFailures(t *testing.T) {
	ctx, bus := newBus(t)
	h := newHandle(ctx, "test", bus)
	boom := errors.New("boom")
	var stopped []string
	h.own("first", func() error { stopped = append(stopped, "first"); return nil })
	h.own("broken", func() error { stopped = append(stopped, "broken"); return boom })
	h.own("last", func() error { stopped = append(stopped, "last"); return nil })

	err := h.Teardown()
	if len(stopped) != 3 {
		t.Fatalf("stopped %v, want all three elements", stopped)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	var te *TeardownError
	if !errors.As(err, &te) || te.Element != "broken" || te.Source != "test" {
		t.Fatalf("expected TeardownError for broken element, got %#v", err)
	}
	if h.Output().Connected() {
		t.Fatal("output still connected after failed teardown")
	}
}

func TestHeartbeatTiming(t *testing.T) {
	ctx, bus := newBus(t)
	h, hb, err := startHeartbeat(ctx, bus)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Teardown()

	renderSeconds(ctx, 0.03)
	ctx.Render(make([]float32, 2))
	if v := hb.gate.Gain.Value(); math.Abs(v-1.0) > 1e-9 {
		t.Fatalf("first pulse peak = %f, want 1.0", v)
	}

	renderSeconds(ctx, 0.75)
	if hb.beats != 1 {
		t.Fatalf("beats = %d before 800 ms, want 1", hb.beats)
	}
	if p := hb.gate.Gain.Pending(); p != 0 {
		t.Fatalf("second pulse still has %d pending events", p)
	}
	if v := hb.gate.Gain.Value(); math.Abs(v-0.001) > 1e-12 {
		t.Fatalf("second pulse decayed to %f, want 0.001", v)
	}

	renderSeconds(ctx, 0.1)
	if hb.beats != 2 {
		t.Fatalf("beats = %d after 800 ms, want 2", hb.beats)
	}
	if hb.last != BeatPeriod {
		t.Fatalf("second trigger at %v, want %v", hb.last, BeatPeriod)
	}

	prev := hb.last
	renderSeconds(ctx, 0.8)
	if got := hb.last - prev; math.Abs(got-BeatPeriod) > 1e-9 {
		t.Fatalf("trigger spacing = %v, want %v", got, BeatPeriod)
	}
}

func TestHeartbeatRetriggerCancelsPendingRamps(t *testing.T) {
	ctx, bus := newBus(t)
	h, hb, err := startHeartbeat(ctx, bus)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Teardown()
	renderSeconds(ctx, 0.1)
	before := hb.gate.Gain.Pending()
	hb.trigger()
	if after := hb.gate.Gain.Pending(); after != len(lubDub) {
		t.Fatalf("pending after retrigger = %d (before %d), want %d", after, before, len(lubDub))
	}
}

func TestLubDubEnvelopeIsWellFormed(t *testing.T) {
	for i, s := range lubDub {
		if i > 0 && s.at < lubDub[i-1].at {
			t.Fatalf("step %d goes back in time", i)
		}
		if s.kind == stepExp && !(s.value > 0) {
			t.Fatalf("step %d: exponential target %v must be positive", i, s.value)
		}
	}
	if last := lubDub[len(lubDub)-1].at; last >= BeatPeriod {
		t.Fatalf("envelope (%v s) outlasts the beat period", last)
	}
}

func TestOceanOwnsEveryLayer(t *testing.T) {
	ctx, bus := newBus(t)
	h, err := StartOcean(ctx, bus)
	if err != nil {
		t.Fatal(err)
	}
	renderSeconds(ctx, 0.1)
	if err := h.Teardown(); err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, e := range h.elems {
		names[e.name] = true
	}
	for _, want := range []string{"waves", "foam", "wave swell", "foam swell"} {
		if !names[want] {
			t.Fatalf("ocean does not own %q", want)
		}
	}
}
