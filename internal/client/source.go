package client

import (
	"context"
)

// FrameSource is an abstract producer of fixed-duration PCM frames. Device
// acquisition lives outside this module; this interface is the contract any
// concrete source (microphone capture, a WAV file, a test generator)
// satisfies.
type FrameSource interface {
	// Frames returns a channel of fixed-size float32 mono frames at
	// SampleRate(). The channel is closed when the source is exhausted or
	// ctx is done.
	Frames(ctx context.Context) <-chan []float32
	SampleRate() int
}

// WAVFileSource replays a WAV file as a sequence of fixed-duration frames,
// useful for integration tests and offline replay without a real capture
// device. Frame delivery happens on a dedicated goroutine so a slow
// consumer never blocks capture-side code.
type WAVFileSource struct {
	samples    []float32
	sampleRate int
	frameSize  int
}

// NewWAVFileSource builds a source over already-decoded samples (e.g. from
// audio.DecodeWAV), chunked into frameSize-sample frames.
func NewWAVFileSource(samples []float32, sampleRate, frameSize int) *WAVFileSource {
	return &WAVFileSource{samples: samples, sampleRate: sampleRate, frameSize: frameSize}
}

func (s *WAVFileSource) SampleRate() int { return s.sampleRate }

func (s *WAVFileSource) Frames(ctx context.Context) <-chan []float32 {
	out := make(chan []float32)
	go func() {
		defer close(out)
		for i := 0; i < len(s.samples); i += s.frameSize {
			end := min(i+s.frameSize, len(s.samples))
			frame := make([]float32, s.frameSize)
			copy(frame, s.samples[i:end])
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// SilenceSource generates count frames of silence at the given rate,
// primarily useful in tests and for the server's own warmup analog on the
// client side (idle capture with nothing to transcribe).
type SilenceSource struct {
	sampleRate int
	frameSize  int
	count      int
}

func NewSilenceSource(sampleRate, frameSize, count int) *SilenceSource {
	return &SilenceSource{sampleRate: sampleRate, frameSize: frameSize, count: count}
}

func (s *SilenceSource) SampleRate() int { return s.sampleRate }

func (s *SilenceSource) Frames(ctx context.Context) <-chan []float32 {
	out := make(chan []float32)
	go func() {
		defer close(out)
		for i := 0; i < s.count; i++ {
			select {
			case out <- make([]float32, s.frameSize):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
