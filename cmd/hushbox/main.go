package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cbegin/hushbox-go"
	"github.com/cbegin/hushbox-go/internal/prefs"
)

func main() {
	var (
		sounds     = flag.String("sounds", "pink", "comma-separated sources: white|pink|brown|rain|ocean|heartbeat")
		song       = flag.String("lullaby", "", "lullaby to loop: twinkle|brahms|mozzart")
		volume     = flag.Float64("volume", -1, "master volume 0..100 (default from preferences)")
		timer      = flag.Int("timer", -1, "sleep timer in minutes, 0 disables (default from preferences)")
		prefsPath  = flag.String("prefs", "", "preferences file (default in the user config dir)")
		sampleRate = flag.Int("sample-rate", hushbox.DefaultSampleRate, "output sample rate")
		renderPath = flag.String("render", "", "render to a float32 WAV file instead of playing")
		seconds    = flag.Float64("seconds", 30, "length of -render output")
		verbose    = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	logger := newLogger(*verbose)

	path := *prefsPath
	if path == "" {
		p, err := prefs.DefaultPath()
		if err != nil {
			log.Fatal(err)
		}
		path = p
	}
	pref, err := prefs.Load(path)
	if err != nil {
		// first run, or a damaged file; defaults are fine either way
		logger.Info("using default preferences", slog.Any("err", err))
	}
	pref = applyFlags(pref, *volume, *timer)

	types, err := parseSounds(*sounds)
	if err != nil {
		log.Fatal(err)
	}
	opts := []hushbox.Option{
		hushbox.WithSampleRate(*sampleRate),
		hushbox.WithLogger(logger),
		hushbox.WithMasterVolume(float64(pref.MasterVolume)),
	}
	if *renderPath != "" {
		opts = append(opts, hushbox.WithoutOutput())
	}
	engine, err := hushbox.New(opts...)
	if err != nil {
		log.Fatal(err)
	}
	if err := engine.Init(); err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	for _, t := range types {
		if err := engine.Start(t); err != nil {
			log.Fatal(err)
		}
	}
	if strings.TrimSpace(*song) != "" {
		id, err := hushbox.ParseSongID(*song)
		if err != nil {
			log.Fatal(err)
		}
		if err := engine.PlayLullaby(id); err != nil {
			log.Fatal(err)
		}
	}
	if err := engine.SetTimer(pref.TimerMinutes); err != nil {
		log.Fatal(err)
	}

	if *renderPath != "" {
		if err := render(engine, *renderPath, *seconds); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	play(ctx, engine, logger)

	if err := prefs.Save(path, pref); err != nil {
		logger.Warn("save preferences", slog.String("path", path), slog.Any("err", err))
	}
}

// applyFlags overrides saved preferences with the flags that were given;
// negative values mean unset. Volume rounds like a saved slider value.
func applyFlags(p prefs.Prefs, volume float64, timer int) prefs.Prefs {
	if volume >= 0 {
		p.MasterVolume = prefs.Level(math.Round(volume))
	}
	if timer >= 0 {
		p.TimerMinutes = timer
	}
	return p
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func parseSounds(list string) ([]hushbox.SoundType, error) {
	var out []hushbox.SoundType
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := hushbox.ParseSoundType(name)
		if err != nil {
			return nil, fmt.Errorf("invalid -sounds: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func render(engine *hushbox.Engine, path string, seconds float64) error {
	samples, err := engine.RenderSeconds(seconds)
	if err != nil {
		return err
	}
	wav := hushbox.EncodeWAVFloat32LE(samples, engine.SampleRate(), 2)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%.1fs)\n", path, seconds)
	return nil
}

// play runs until the sleep timer expires or ctx is cancelled; cancellation
// fades out like the pause button.
func play(ctx context.Context, engine *hushbox.Engine, logger *slog.Logger) {
	events := engine.Watch()
	for {
		select {
		case <-ctx.Done():
			pauseAndWait(engine, events)
			return
		case ev := <-events:
			switch ev.Kind {
			case hushbox.EventTimerTick:
				logger.Debug("timer", slog.Duration("remaining", ev.Remaining))
			case hushbox.EventLullabyLoop:
				logger.Debug("lullaby pass", slog.String("song", ev.Song.String()), slog.Int("loop", ev.Loop))
			case hushbox.EventTimerExpired:
				fmt.Println("sleep timer expired")
				return
			}
		}
	}
}

func pauseAndWait(engine *hushbox.Engine, events <-chan hushbox.Event) {
	if err := engine.PauseAll(); err != nil {
		if !errors.Is(err, hushbox.ErrNotInitialized) {
			log.Print(err)
		}
		return
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == hushbox.EventPaused {
				return
			}
		case <-deadline:
			return
		}
	}
}
