// Package backend normalizes diverse speech recognizers to one contract:
// transcribe(samples, rate, initial_prompt?) -> TranscriptResult.
// Adapters resample to their native rate via linear interpolation, report
// wall-clock processing time, and distinguish a not-yet-loaded model from a
// transient runtime failure.
package backend

import (
	"context"
	"errors"

	"github.com/wavesignal/sttstream/internal/audio"
)

// Segment is a timestamped span of recognized text, relative to the audio
// given to the backend.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Result is what a Backend returns for one transcription call.
type Result struct {
	Text         string
	Segments     []Segment
	Language     string
	ProcessingMs float64
}

// ErrNotLoaded is returned when a Backend is invoked before its model has
// finished loading. The server host treats this as fatal at warmup time and
// as a connection-closing condition at request time.
var ErrNotLoaded = errors.New("backend: model not loaded")

// Backend is the contract every recognizer adapter satisfies. initialPrompt
// is an optional conditioning hint; adapters that cannot use it ignore it
// rather than error.
type Backend interface {
	Transcribe(ctx context.Context, samples []float32, rate int, initialPrompt string) (Result, error)
}

// NativeRate is the sample rate this system's recognizer adapters are tuned
// for; inputs at any other rate are resampled before transcription.
const NativeRate = 16000

// Resample normalizes samples at rate to NativeRate using linear
// interpolation, the one non-passthrough resampling path this system
// implements.
func Resample(samples []float32, rate int) []float32 {
	return audio.Resample(samples, rate, NativeRate)
}
