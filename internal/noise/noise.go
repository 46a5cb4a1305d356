// Package noise renders procedural noise buffers.
package noise

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Color is the spectral shape of a noise buffer.
type Color string

const (
	White Color = "white" // flat
	Pink  Color = "pink"  // about -3 dB per octave
	Brown Color = "brown" // about -6 dB per octave
)

var ErrUnsupportedColor = errors.New("noise: unsupported color")

// Buffer is an immutable multichannel sample buffer. Callers must not modify
// Channels.
type Buffer struct {
	Color      Color
	Duration   float64
	SampleRate int
	Channels   [][]float32
}

// Frames returns the per-channel length.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Generate renders seconds of noise, each channel drawn independently.
func Generate(color Color, seconds float64, sampleRate, channels int) (*Buffer, error) {
	return GenerateWith(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), color, seconds, sampleRate, channels)
}

// GenerateWith is Generate with an explicit random source.
func GenerateWith(rng *rand.Rand, color Color, seconds float64, sampleRate, channels int) (*Buffer, error) {
	fill, ok := fillers[color]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedColor, string(color))
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("noise: sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("noise: channel count must be positive, got %d", channels)
	}
	if !(seconds > 0) || math.IsInf(seconds, 0) {
		return nil, fmt.Errorf("noise: invalid duration %v", seconds)
	}
	length := int(float64(sampleRate) * seconds)
	if length == 0 {
		return nil, fmt.Errorf("noise: %v s at %d Hz is shorter than one sample", seconds, sampleRate)
	}
	b := &Buffer{Color: color, Duration: seconds, SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range b.Channels {
		data := make([]float32, length)
		fill(rng, data)
		b.Channels[ch] = data
	}
	return b, nil
}

var fillers = map[Color]func(*rand.Rand, []float32){
	White: fillWhite,
	Pink:  fillPink,
	Brown: fillBrown,
}

func white(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}

func fillWhite(rng *rand.Rand, data []float32) {
	for i := range data {
		data[i] = float32(white(rng))
	}
}

// fillPink uses Paul Kellet's refined filter: six one-pole sections plus a
// direct white term, with b6 carrying a one-sample-delayed white term.
func fillPink(rng *rand.Rand, data []float32) {
	var b0, b1, b2, b3, b4, b5, b6 float64
	for i := range data {
		w := white(rng)
		b0 = 0.99886*b0 + w*0.0555179
		b1 = 0.99332*b1 + w*0.0750759
		b2 = 0.96900*b2 + w*0.1538520
		b3 = 0.86650*b3 + w*0.3104856
		b4 = 0.55000*b4 + w*0.5329522
		b5 = -0.7616*b5 - w*0.0168980
		data[i] = float32((b0 + b1 + b2 + b3 + b4 + b5 + b6 + w*0.5362) * 0.11)
		b6 = w * 0.115926
	}
}

// fillBrown is a leaky integrator; the x3.5 makeup brings it back to a
// level comparable with white and pink.
func fillBrown(rng *rand.Rand, data []float32) {
	var last float64
	for i := range data {
		last = (last + 0.02*white(rng)) / 1.02
		data[i] = float32(last * 3.5)
	}
}
