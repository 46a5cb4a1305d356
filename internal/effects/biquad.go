package effects

import (
	"fmt"
	"math"
)

// FilterType selects the biquad response.
type FilterType int

const (
	LowPass FilterType = iota
	BandPass
	HighShelf
)

func (t FilterType) String() string {
	switch t {
	case LowPass:
		return "lowpass"
	case BandPass:
		return "bandpass"
	case HighShelf:
		return "highshelf"
	}
	return fmt.Sprintf("FilterType(%d)", int(t))
}

// ButterworthQ is the Q that gives a maximally flat low-pass.
const ButterworthQ = 0.7071067811865476

// Biquad is a stereo second-order IIR filter using the RBJ cookbook
// coefficients. State is kept in float64 so low cutoffs at high sample rates
// stay stable.
type Biquad struct {
	typ    FilterType
	freq   float64
	q      float64
	gainDB float64

	b0, b1, b2, a1, a2 float64

	// direct form I history, per channel
	x1L, x2L, y1L, y2L float64
	x1R, x2R, y1R, y2R float64
}

// NewBiquad creates a filter. freq is the cutoff (low-pass), center
// (band-pass) or corner (high-shelf) frequency in Hz, clamped below Nyquist.
// gainDB only affects the high-shelf.
func NewBiquad(sampleRate int, typ FilterType, freq, q, gainDB float64) (*Biquad, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("biquad: sample rate must be positive, got %d", sampleRate)
	}
	if !(freq > 0) || math.IsInf(freq, 0) {
		return nil, fmt.Errorf("biquad: invalid frequency %v", freq)
	}
	if !(q > 0) || math.IsInf(q, 0) {
		return nil, fmt.Errorf("biquad: invalid Q %v", q)
	}
	switch typ {
	case LowPass, BandPass, HighShelf:
	default:
		return nil, fmt.Errorf("biquad: unknown filter type %v", typ)
	}
	b := &Biquad{typ: typ, freq: freq, q: q, gainDB: gainDB}
	b.design(float64(sampleRate))
	return b, nil
}

func (b *Biquad) design(sr float64) {
	f := math.Min(b.freq, sr*0.49)
	w0 := 2 * math.Pi * f / sr
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * b.q)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.typ {
	case LowPass:
		b0 = (1 - cosW) / 2
		b1 = 1 - cosW
		b2 = (1 - cosW) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case BandPass:
		// constant 0 dB peak gain
		b0 = alpha
		b1 = 0
		b2 = -alpha
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case HighShelf:
		// shelf slope S = 1
		A := math.Pow(10, b.gainDB/40)
		sqA := math.Sqrt(A)
		alpha = sinW / 2 * math.Sqrt2
		b0 = A * ((A + 1) + (A-1)*cosW + 2*sqA*alpha)
		b1 = -2 * A * ((A - 1) + (A+1)*cosW)
		b2 = A * ((A + 1) + (A-1)*cosW - 2*sqA*alpha)
		a0 = (A + 1) - (A-1)*cosW + 2*sqA*alpha
		a1 = 2 * ((A - 1) - (A+1)*cosW)
		a2 = (A + 1) - (A-1)*cosW - 2*sqA*alpha
	}
	b.b0, b.b1, b.b2 = b0/a0, b1/a0, b2/a0
	b.a1, b.a2 = a1/a0, a2/a0
}

func (b *Biquad) Process(l, r float32) (float32, float32) {
	xl, xr := float64(l), float64(r)
	yl := b.b0*xl + b.b1*b.x1L + b.b2*b.x2L - b.a1*b.y1L - b.a2*b.y2L
	yr := b.b0*xr + b.b1*b.x1R + b.b2*b.x2R - b.a1*b.y1R - b.a2*b.y2R
	b.x2L, b.x1L = b.x1L, xl
	b.y2L, b.y1L = b.y1L, yl
	b.x2R, b.x1R = b.x1R, xr
	b.y2R, b.y1R = b.y1R, yr
	return float32(yl), float32(yr)
}

func (b *Biquad) Reset() {
	b.x1L, b.x2L, b.y1L, b.y2L = 0, 0, 0, 0
	b.x1R, b.x2R, b.y1R, b.y2R = 0, 0, 0, 0
}
