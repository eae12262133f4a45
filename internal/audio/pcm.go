package audio

import (
	"encoding/binary"
	"math"
)

// FloatToPCM16 converts normalized float32 samples in [-1, 1] to little-endian
// signed 16-bit PCM bytes, the representation VAD backends classify frames in.
func FloatToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		clamped := max(float32(-1.0), min(float32(1.0), s))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(clamped*math.MaxInt16)))
	}
	return buf
}

// DecodePCM16 converts little-endian signed 16-bit PCM bytes to normalized
// float32 samples in [-1, 1].
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / math.MaxInt16
	}
	return samples
}
