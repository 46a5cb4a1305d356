package hushbox

import (
	"fmt"
	"log/slog"

	"github.com/cbegin/hushbox-go/internal/lullaby"
)

// lullabyNormalization keeps melodies under the ambient beds.
const lullabyNormalization = 0.85

// PlayLullaby switches to song. The previous song is retired first: its loop
// stops re-arming and its gain fades out before it is disconnected, so it can
// never touch the new song's stage. Playing the current song is a no-op.
func (e *Engine) PlayLullaby(song SongID) error {
	if !song.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedSongID, song)
	}
	score, ok := lullaby.Lookup(song.String())
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnsupportedSongID, song)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	if e.lullaby != nil && e.lullabyID == song {
		return nil
	}
	e.resumeLocked()
	e.stopLullabyLocked()

	log := e.log.With(slog.String("song", song.String()))
	p, err := lullaby.Start(e.ctx, e.master, score, e.songVolume[song]*lullabyNormalization, lullaby.Options{
		OnLoop: func(n int) {
			e.sendEvent(Event{Kind: EventLullabyLoop, Song: song, Loop: n})
		},
		OnFault: func(err error) {
			log.Warn("lullaby fault", slog.Any("err", err))
		},
	})
	if err != nil {
		return fmt.Errorf("play %v: %w", song, err)
	}
	e.lullaby, e.lullabyID = p, song
	e.playing = true
	log.Debug("lullaby started", slog.Float64("loop_seconds", p.LoopDuration()))
	return nil
}

// StopLullaby retires the current song; with none playing it is a no-op.
func (e *Engine) StopLullaby() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	e.stopLullabyLocked()
	return nil
}

func (e *Engine) stopLullabyLocked() {
	if e.lullaby == nil {
		return
	}
	e.lullaby.Retire()
	fading := e.retiring[:0]
	for _, p := range e.retiring {
		if !p.Released() {
			fading = append(fading, p)
		}
	}
	clear(e.retiring[len(fading):])
	e.retiring = append(fading, e.lullaby)
	e.log.Debug("lullaby stopped", slog.String("song", e.lullabyID.String()))
	e.lullaby = nil
}

// cutLullabiesLocked drops the current song and any still fading, with no
// fade of their own.
func (e *Engine) cutLullabiesLocked() {
	for _, p := range e.retiring {
		p.Cut()
	}
	e.retiring = nil
	if e.lullaby == nil {
		return
	}
	e.lullaby.Cut()
	e.log.Debug("lullaby cut", slog.String("song", e.lullabyID.String()))
	e.lullaby = nil
}

// SetLullabyVolume sets a song's volume, 0..100, ramping it if the song is
// playing.
func (e *Engine) SetLullabyVolume(song SongID, volume float64) error {
	if !song.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedSongID, song)
	}
	if !validVolume(volume) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.needInit(); err != nil {
		return err
	}
	e.songVolume[song] = volume / 100
	if e.lullaby != nil && e.lullabyID == song {
		return e.lullaby.SetLevel(e.songVolume[song]*lullabyNormalization, rampTime)
	}
	return nil
}

// CurrentLullaby returns the playing song, if any.
func (e *Engine) CurrentLullaby() (SongID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lullaby == nil {
		return 0, false
	}
	return e.lullabyID, true
}
