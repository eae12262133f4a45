package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const wavHeaderSize = 44

// SamplesToWAV encodes float32 mono samples as a 16-bit PCM WAV byte slice,
// the upload format the HTTP recognizer sidecar expects.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, wavHeaderSize+dataLen)

	writeWAVHeader(buf, sampleRate, dataLen)
	for i, s := range samples {
		clamped := max(float32(-1.0), min(float32(1.0), s))
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(int16(clamped*math.MaxInt16)))
	}
	return buf
}

func writeWAVHeader(buf []byte, sampleRate, dataLen int) {
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(wavHeaderSize+dataLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
}

// DecodeWAV parses a 16-bit PCM mono WAV byte slice into normalized float32
// samples and the file's sample rate, in the form the replay Frame Source
// (client.NewWAVFileSource) takes; it accepts only the plain header layout
// SamplesToWAV produces.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("wav: %d bytes is too short for a header", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("wav: missing RIFF/WAVE markers")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, 0, fmt.Errorf("wav: unsupported format %d, want PCM", format)
	}
	if channels := binary.LittleEndian.Uint16(data[22:24]); channels != 1 {
		return nil, 0, fmt.Errorf("wav: %d channels, want mono", channels)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		return nil, 0, fmt.Errorf("wav: %d bits per sample, want 16", bits)
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	dataLen := int(binary.LittleEndian.Uint32(data[40:44]))
	if wavHeaderSize+dataLen > len(data) {
		dataLen = len(data) - wavHeaderSize
	}

	return DecodePCM16(data[wavHeaderSize : wavHeaderSize+dataLen]), sampleRate, nil
}
