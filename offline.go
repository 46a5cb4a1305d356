package hushbox

import (
	"encoding/binary"
	"fmt"
	"math"
)

// renderBlock matches a typical device buffer so offline renders split
// timers the same way live playback does.
const renderBlock = 512

// RenderSeconds renders the next seconds of audio as interleaved stereo.
func (e *Engine) RenderSeconds(seconds float64) ([]float32, error) {
	if math.IsNaN(seconds) || seconds < 0 {
		return nil, fmt.Errorf("render length must not be negative, got %v", seconds)
	}
	frames := int(math.Round(seconds * float64(e.cfg.sampleRate)))
	out := make([]float32, frames*2)
	for off := 0; off < len(out); off += renderBlock * 2 {
		end := min(off+renderBlock*2, len(out))
		if err := e.Render(out[off:end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
