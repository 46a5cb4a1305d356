package hushbox

import (
	"fmt"
	"strings"

	"github.com/cbegin/hushbox-go/internal/ambient"
	"github.com/cbegin/hushbox-go/internal/graph"
	"github.com/cbegin/hushbox-go/internal/noise"
)

// SoundType names one of the looping ambient sources.
type SoundType int

const (
	White SoundType = iota
	Pink
	Brown
	Rain
	Ocean
	Heartbeat
	numSoundTypes
)

var soundNames = [numSoundTypes]string{"white", "pink", "brown", "rain", "ocean", "heartbeat"}

// normalization evens out perceived loudness between sources.
var normalization = [numSoundTypes]float64{0.35, 0.65, 0.45, 0.70, 0.85, 0.90}

func (t SoundType) Valid() bool { return t >= 0 && t < numSoundTypes }

func (t SoundType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("SoundType(%d)", int(t))
	}
	return soundNames[t]
}

// ParseSoundType maps a wire name such as "rain" to its SoundType.
func ParseSoundType(name string) (SoundType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range soundNames {
		if n == name {
			return SoundType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedSoundType, name)
}

// SoundTypes lists every source in display order.
func SoundTypes() []SoundType {
	out := make([]SoundType, numSoundTypes)
	for i := range out {
		out[i] = SoundType(i)
	}
	return out
}

type sourceKind int

const (
	kindNoise sourceKind = iota
	kindComposite
)

func (t SoundType) kind() sourceKind {
	switch t {
	case White, Pink, Brown:
		return kindNoise
	default:
		return kindComposite
	}
}

// build starts the source's nodes feeding bus.
func (t SoundType) build(ctx *graph.Context, bus graph.Input) (*ambient.Handle, error) {
	switch t {
	case White:
		return ambient.StartNoise(ctx, noise.White, bus)
	case Pink:
		return ambient.StartNoise(ctx, noise.Pink, bus)
	case Brown:
		return ambient.StartNoise(ctx, noise.Brown, bus)
	case Rain:
		return ambient.StartRain(ctx, bus)
	case Ocean:
		return ambient.StartOcean(ctx, bus)
	case Heartbeat:
		return ambient.StartHeartbeat(ctx, bus)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedSoundType, t)
}

// SongID names one of the built-in lullabies.
type SongID int

const (
	Twinkle SongID = iota
	Brahms
	Mozart
	numSongs
)

// The misspelled "mozzart" is the established wire name.
var songNames = [numSongs]string{"twinkle", "brahms", "mozzart"}

func (s SongID) Valid() bool { return s >= 0 && s < numSongs }

func (s SongID) String() string {
	if !s.Valid() {
		return fmt.Sprintf("SongID(%d)", int(s))
	}
	return songNames[s]
}

func ParseSongID(name string) (SongID, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range songNames {
		if n == name {
			return SongID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedSongID, name)
}

func SongIDs() []SongID {
	return []SongID{Twinkle, Brahms, Mozart}
}
