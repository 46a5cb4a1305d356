// Package hushbox is a procedural ambient-sound and lullaby player. An Engine
// owns one signal graph: colored noise and composite soundscapes each feed
// their own gain stage, at most one lullaby loops into another, and all of
// them meet at a master gain that user volume, the pause fade and the sleep
// timer ramp in turn.
package hushbox

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cbegin/hushbox-go/internal/ambient"
	intaudio "github.com/cbegin/hushbox-go/internal/audio"
	"github.com/cbegin/hushbox-go/internal/graph"
	"github.com/cbegin/hushbox-go/internal/lullaby"
)

const (
	DefaultSampleRate    = 48000
	DefaultMasterVolume  = 90
	DefaultSourceVolume  = 50
	DefaultLullabyVolume = 70

	// floor is the lowest gain a fade reaches; fades never hit zero.
	floor = lullaby.Floor
	// rampTime smooths every user volume change.
	rampTime = 0.05
	// pauseFade is the master fade of PauseAll; sources stop at pauseSettle.
	pauseFade   = 0.5
	pauseSettle = 0.55
)

// EventKind identifies engine events delivered through Watch.
type EventKind int

const (
	EventTimerTick EventKind = iota
	EventTimerExpired
	EventPaused
	EventLullabyLoop
)

func (k EventKind) String() string {
	switch k {
	case EventTimerTick:
		return "timer-tick"
	case EventTimerExpired:
		return "timer-expired"
	case EventPaused:
		return "paused"
	case EventLullabyLoop:
		return "lullaby-loop"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event carries engine events from Watch().
type Event struct {
	Kind EventKind
	// Remaining is set on EventTimerTick.
	Remaining time.Duration
	// Song and Loop are set on EventLullabyLoop; Loop counts passes from 1.
	Song SongID
	Loop int
}

type Option func(*config)

type config struct {
	sampleRate   int
	logger       *slog.Logger
	output       bool
	buffer       time.Duration
	masterVolume float64
}

func defaultConfig() config {
	return config{
		sampleRate:   DefaultSampleRate,
		output:       true,
		masterVolume: DefaultMasterVolume,
	}
}

func WithSampleRate(sampleRate int) Option {
	return func(cfg *config) {
		cfg.sampleRate = sampleRate
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithoutOutput skips the audio device; drive the engine with Render.
func WithoutOutput() Option {
	return func(cfg *config) {
		cfg.output = false
	}
}

// WithOutputBuffer sets the device buffer length.
func WithOutputBuffer(d time.Duration) Option {
	return func(cfg *config) {
		cfg.buffer = d
	}
}

// WithMasterVolume sets the initial master volume, 0..100.
func WithMasterVolume(volume float64) Option {
	return func(cfg *config) {
		cfg.masterVolume = volume
	}
}

type activeSource struct {
	kind   sourceKind
	gain   *graph.Gain
	norm   float64
	handle *ambient.Handle
}

type Engine struct {
	mu  sync.Mutex
	cfg config
	log *slog.Logger

	// set by Init
	ctx    *graph.Context
	master *graph.Gain
	sink   *intaudio.Sink

	sources      [numSoundTypes]*activeSource
	sourceVolume [numSoundTypes]float64
	songVolume   [numSongs]float64
	masterVolume float64

	lullaby   *lullaby.Playback
	lullabyID SongID
	// retired songs still fading out
	retiring []*lullaby.Playback

	playing      bool
	pendingPause *graph.Timer
	timer        sleepTimer
	closed       bool

	eventCh   chan Event
	eventChMu sync.Mutex
}

// New configures an engine. Nothing is allocated on the audio device until
// Init.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if !validVolume(cfg.masterVolume) {
		return nil, fmt.Errorf("%w: master %v", ErrInvalidVolume, cfg.masterVolume)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:          cfg,
		log:          logger.With(slog.String("component", "hushbox")),
		masterVolume: cfg.masterVolume / 100,
	}
	for i := range e.sourceVolume {
		e.sourceVolume[i] = DefaultSourceVolume / 100.0
	}
	for i := range e.songVolume {
		e.songVolume[i] = DefaultLullabyVolume / 100.0
	}
	return e, nil
}

// Init builds the graph and opens the output. It is idempotent; every other
// control call fails with ErrNotInitialized until it has run.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.ctx != nil {
		return nil
	}
	ctx, err := graph.NewContext(e.cfg.sampleRate)
	if err != nil {
		return err
	}
	master := ctx.NewGain(e.masterVolume)
	master.Connect(ctx.Destination())
	e.ctx, e.master = ctx, master

	if e.cfg.output {
		sink, err := intaudio.NewSink(e.cfg.sampleRate, e, e.cfg.buffer)
		if err != nil {
			e.ctx, e.master = nil, nil
			return fmt.Errorf("open output: %w", err)
		}
		e.sink = sink
		sink.Play()
	}
	e.log.Debug("engine initialized", slog.Int("sample_rate", e.cfg.sampleRate), slog.Bool("output", e.cfg.output))
	return nil
}

func (e *Engine) needInit() error {
	if e.closed {
		return ErrClosed
	}
	if e.ctx == nil {
		return ErrNotInitialized
	}
	return nil
}

func validVolume(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// Process renders the next len(dst)/2 stereo frames. It is the output sink's
// callback and writes silence before Init.
func (e *Engine) Process(dst []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil || e.closed {
		clear(dst)
		return
	}
	e.ctx.Render(dst)
}

// Render is Process for offline use: it reports ErrNotInitialized instead of
// writing silence.
func (e *Engine) Render(dst []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	e.ctx.Render(dst)
	return nil
}

// Start begins a source. Starting an active source is a no-op.
func (e *Engine) Start(t SoundType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedSoundType, t)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	if e.sources[t] != nil {
		return nil
	}
	e.resumeLocked()
	norm := normalization[t]
	gain := e.ctx.NewGain(norm * e.sourceVolume[t])
	gain.Connect(e.master)
	h, err := t.build(e.ctx, gain)
	if err != nil {
		gain.Disconnect()
		return fmt.Errorf("start %v: %w", t, err)
	}
	e.sources[t] = &activeSource{kind: t.kind(), gain: gain, norm: norm, handle: h}
	e.playing = true
	e.log.Debug("source started", slog.String("source", t.String()))
	return nil
}

// Stop tears a source down. Stopping an inactive source is a no-op.
func (e *Engine) Stop(t SoundType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedSoundType, t)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	e.stopLocked(t)
	return nil
}

func (e *Engine) stopLocked(t SoundType) {
	src := e.sources[t]
	if src == nil {
		return
	}
	e.sources[t] = nil
	if err := src.handle.Teardown(); err != nil {
		e.log.Warn("source teardown fault", slog.String("source", t.String()), slog.Any("err", err))
	}
	src.gain.Disconnect()
	e.log.Debug("source stopped", slog.String("source", t.String()))
}

// SetSourceVolume sets a source's volume, 0..100. The value is kept for the
// next Start when the source is inactive.
func (e *Engine) SetSourceVolume(t SoundType, volume float64) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedSoundType, t)
	}
	if !validVolume(volume) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	e.sourceVolume[t] = volume / 100
	if src := e.sources[t]; src != nil {
		return src.gain.Gain.RampTo(src.norm*e.sourceVolume[t], rampTime)
	}
	return nil
}

// SourceVolume returns the stored volume of a source, 0..100.
func (e *Engine) SourceVolume(t SoundType) float64 {
	if !t.Valid() {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sourceVolume[t] * 100
}

// SetMasterVolume sets the master volume, 0..100. While a pause is fading
// out the value is only stored, and restored when the pause completes.
func (e *Engine) SetMasterVolume(volume float64) error {
	if !validVolume(volume) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	e.masterVolume = volume / 100
	if e.pendingPause != nil {
		return nil
	}
	return e.rampMaster(e.masterVolume, rampTime)
}

// MasterVolume returns the configured master volume, 0..100.
func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masterVolume * 100
}

// rampMaster is the only writer of scheduled master ramps. RampTo cancels
// whatever the user, the pause or the timer scheduled before.
func (e *Engine) rampMaster(v, d float64) error {
	return e.master.Gain.RampTo(v, d)
}

// PlayAll marks the transport as playing and aborts a pause that has not
// finished fading.
func (e *Engine) PlayAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	e.playing = true
	e.resumeLocked()
	if e.sink != nil && !e.sink.IsPlaying() {
		e.sink.Play()
	}
	return nil
}

func (e *Engine) resumeLocked() {
	if e.pendingPause == nil {
		return
	}
	e.pendingPause.Stop()
	e.pendingPause = nil
	if err := e.rampMaster(e.masterVolume, rampTime); err != nil {
		e.log.Warn("restore master", slog.Any("err", err))
	}
}

// PauseAll fades the master bus out, then stops every source and the lullaby
// and restores the master level for the next session. A second PauseAll
// during the fade restarts it.
func (e *Engine) PauseAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	e.playing = false
	if e.pendingPause != nil {
		e.pendingPause.Stop()
	}
	if err := e.rampMaster(floor, pauseFade); err != nil {
		return err
	}
	tm, err := e.ctx.After(pauseSettle, e.completePause)
	if err != nil {
		return err
	}
	e.pendingPause = tm
	return nil
}

// completePause runs on the render path.
func (e *Engine) completePause() {
	e.pendingPause = nil
	e.stopAllLocked()
	if err := e.master.Gain.SetValue(e.masterVolume); err != nil {
		e.log.Warn("restore master", slog.Any("err", err))
	}
	e.log.Debug("paused")
	e.sendEvent(Event{Kind: EventPaused})
}

// stopAllLocked runs once the master has faded to floor, so lullabies are cut
// rather than given their own fade.
func (e *Engine) stopAllLocked() {
	for t := range e.sources {
		e.stopLocked(SoundType(t))
	}
	e.cutLullabiesLocked()
}

// Active reports whether a source is running.
func (e *Engine) Active(t SoundType) bool {
	if !t.Valid() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sources[t] != nil
}

// ActiveSources lists the running sources in display order.
func (e *Engine) ActiveSources() []SoundType {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []SoundType
	for t, src := range e.sources {
		if src != nil {
			out = append(out, SoundType(t))
		}
	}
	return out
}

// Playing reports the transport state: set by PlayAll, Start and
// PlayLullaby, cleared by PauseAll and by timer expiry.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// MasterGain returns the master gain at the last rendered frame.
func (e *Engine) MasterGain() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.master == nil {
		return 0
	}
	return e.master.Gain.Value()
}

// CurrentTime returns the audio clock in seconds.
func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return 0
	}
	return e.ctx.CurrentTime()
}

func (e *Engine) SampleRate() int { return e.cfg.sampleRate }

// Watch returns a channel that receives engine events. Events are sent on
// the render path and dropped when the channel is full, so receive in a
// goroutine. Only the most recent Watch channel receives events.
func (e *Engine) Watch() <-chan Event {
	ch := make(chan Event, 16)
	e.eventChMu.Lock()
	e.eventCh = ch
	e.eventChMu.Unlock()
	return ch
}

func (e *Engine) sendEvent(ev Event) {
	e.eventChMu.Lock()
	ch := e.eventCh
	e.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// Close stops everything and releases the output device. Every later control
// call, Init included, fails with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	sink := e.closeLocked()
	e.mu.Unlock()
	// The player goroutine may be waiting in Process; close it unlocked.
	if sink == nil {
		return nil
	}
	return sink.Close()
}

func (e *Engine) closeLocked() *intaudio.Sink {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.ctx == nil {
		return nil
	}
	e.clearTimerLocked(false)
	if e.pendingPause != nil {
		e.pendingPause.Stop()
		e.pendingPause = nil
	}
	for t := range e.sources {
		e.stopLocked(SoundType(t))
	}
	e.cutLullabiesLocked()
	e.playing = false
	sink := e.sink
	e.sink = nil
	return sink
}
