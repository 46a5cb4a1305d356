package hushbox

import (
	"errors"

	"github.com/cbegin/hushbox-go/internal/ambient"
	"github.com/cbegin/hushbox-go/internal/noise"
)

var (
	ErrNotInitialized        = errors.New("hushbox: engine not initialized")
	ErrClosed                = errors.New("hushbox: engine closed")
	ErrUnsupportedSoundType  = errors.New("hushbox: unsupported sound type")
	ErrUnsupportedSongID     = errors.New("hushbox: unsupported song id")
	ErrUnsupportedNoiseColor = noise.ErrUnsupportedColor
	ErrInvalidVolume         = errors.New("hushbox: volume must be within 0..100")
	ErrInvalidTimer          = errors.New("hushbox: timer minutes must not be negative")
)

// TeardownFault reports one element of a source that failed to stop. The
// engine logs these and carries on; they are never returned.
type TeardownFault = ambient.TeardownError
