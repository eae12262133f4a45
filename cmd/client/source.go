package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
)

// stdinSource reads raw little-endian float32 mono PCM frames from stdin,
// the hand-off point for an external audio-capture process. Piping
// `arecord`/`ffmpeg` output into this process's stdin is the intended
// deployment.
type stdinSource struct {
	sampleRate int
	frameSize  int
	r          *bufio.Reader
}

func newMicrophoneSource(sampleRate, frameSize int) *stdinSource {
	return &stdinSource{sampleRate: sampleRate, frameSize: frameSize, r: bufio.NewReaderSize(os.Stdin, 1<<16)}
}

func (s *stdinSource) SampleRate() int { return s.sampleRate }

func (s *stdinSource) Frames(ctx context.Context) <-chan []float32 {
	out := make(chan []float32)
	go func() {
		defer close(out)
		buf := make([]byte, s.frameSize*4)
		for {
			if _, err := io.ReadFull(s.r, buf); err != nil {
				return
			}
			frame := make([]float32, s.frameSize)
			for i := range frame {
				frame[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
