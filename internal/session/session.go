// Package session implements the per-connection server-side recognition
// state machine: it accumulates audio, applies prompt/context conditioning,
// schedules partial and final transcriptions, and filters hallucinated
// output. A Session is owned exclusively by one connection handler; it
// needs no internal locking.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wavesignal/sttstream/internal/backend"
	"github.com/wavesignal/sttstream/internal/filter"
	"github.com/wavesignal/sttstream/internal/metrics"
	"github.com/wavesignal/sttstream/internal/strategy"
)

// Transcriber is satisfied by *recognizer.Pool; kept as an interface here so
// sessions can be tested against a fake without spinning up a worker pool.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, rate int, initialPrompt string) (backend.Result, error)
}

// Config holds the session-level timing tunables.
type Config struct {
	PartialIntervalMs int
	PartialMaxMs      int
	ContextOverlapMs  int
}

// DefaultConfig returns the standard partial/context timing defaults.
func DefaultConfig() Config {
	return Config{PartialIntervalMs: 500, PartialMaxMs: 3000, ContextOverlapMs: 1000}
}

// Session is the per-connection RecognitionSession.
type Session struct {
	Strategy           strategy.Strategy
	SampleRate         int
	PreviousTranscript string
	ContextAudio       []float32
	AudioBuffer        []float32

	cfg Config
	be  Transcriber
	now func() time.Time

	lastPartialAt time.Time
}

// New creates a fresh RecognitionSession for one connection.
func New(strat strategy.Strategy, sampleRate int, be Transcriber, cfg Config) *Session {
	return &Session{
		Strategy:   strat,
		SampleRate: sampleRate,
		cfg:        cfg,
		be:         be,
		now:        time.Now,
	}
}

// Segment mirrors backend.Segment; re-exported here so callers of this
// package don't need to import backend directly for the common case.
type Segment = backend.Segment

// FinalResult is what a completed final or batch transcription produces.
type FinalResult struct {
	Text         string
	Segments     []Segment
	Language     string
	ProcessingMs float64
	Accepted     bool
	RawText      string // the backend's raw text, for the noise sample on rejection
}

// PartialResult is what a scheduled partial produces.
type PartialResult struct {
	Text         string
	ProcessingMs float64
}

// OnAudioFrame appends one inbound audio_frame's already-decoded samples to
// the buffer. It reports whether a partial is due —
// elapsed time since the last partial has reached PartialIntervalMs and the
// buffer is non-empty — so the caller can invoke Partial next.
func (s *Session) OnAudioFrame(samples []float32) (partialDue bool) {
	wasEmpty := len(s.AudioBuffer) == 0
	s.AudioBuffer = append(s.AudioBuffer, samples...)
	if len(s.AudioBuffer) == 0 {
		return false
	}
	if wasEmpty {
		// Start the partial-interval clock at the first frame of this
		// utterance rather than firing immediately.
		s.lastPartialAt = s.now()
		return false
	}
	return s.now().Sub(s.lastPartialAt) >= time.Duration(s.cfg.PartialIntervalMs)*time.Millisecond
}

// Partial computes the sliding-window partial transcript over the trailing
// PartialMaxMs of AudioBuffer. It never mutates PreviousTranscript,
// ContextAudio, or AudioBuffer. Prompt conditioning is skipped on partials —
// they are latency-critical and commit no state — while context prepending
// still applies when the strategy uses it.
func (s *Session) Partial(ctx context.Context) (PartialResult, error) {
	s.lastPartialAt = s.now()

	window := trailingWindow(s.AudioBuffer, s.SampleRate, s.cfg.PartialMaxMs)
	input := window
	if s.Strategy.UsesContext && len(s.ContextAudio) > 0 {
		input = concatSamples(s.ContextAudio, window)
	}

	res, err := s.be.Transcribe(ctx, input, s.SampleRate, "")
	if err != nil {
		return PartialResult{}, fmt.Errorf("session: partial transcribe: %w", err)
	}

	metrics.PartialsTotal.WithLabelValues(s.Strategy.Name).Inc()
	return PartialResult{
		Text:         filter.DedupPhrases(res.Text, 3),
		ProcessingMs: res.ProcessingMs,
	}, nil
}

// OnVADEnd schedules a final if AudioBuffer is non-empty; otherwise it is a
// no-op except for resetting the partial timer. ok is
// false when there was nothing to finalize. AudioBuffer is empty afterwards
// even when the backend call fails; that utterance's final is dropped.
func (s *Session) OnVADEnd(ctx context.Context) (FinalResult, bool, error) {
	s.lastPartialAt = time.Time{}

	if len(s.AudioBuffer) == 0 {
		return FinalResult{}, false, nil
	}
	res, err := s.finalize(ctx, s.AudioBuffer)
	s.AudioBuffer = nil
	if err != nil {
		return FinalResult{}, false, err
	}
	return res, true, nil
}

// Transcribe handles a batch-mode one-shot request: the whole payload is
// used as the finalization input immediately. It does not touch AudioBuffer.
func (s *Session) Transcribe(ctx context.Context, samples []float32) (FinalResult, error) {
	res, err := s.finalize(ctx, samples)
	if err != nil {
		return FinalResult{}, err
	}
	return res, nil
}

// finalize implements the shared final path used by both OnVADEnd and
// Transcribe: condition, transcribe, trim context, filter, commit state.
func (s *Session) finalize(ctx context.Context, rawAudio []float32) (FinalResult, error) {
	contextDuration := 0.0
	input := rawAudio
	if s.Strategy.UsesContext && len(s.ContextAudio) > 0 {
		contextDuration = float64(len(s.ContextAudio)) / float64(s.SampleRate)
		input = concatSamples(s.ContextAudio, rawAudio)
	}

	initialPrompt := ""
	if s.Strategy.UsesPrompt {
		initialPrompt = s.PreviousTranscript
	}

	res, err := s.be.Transcribe(ctx, input, s.SampleRate, initialPrompt)
	if err != nil {
		return FinalResult{}, fmt.Errorf("session: final transcribe: %w", err)
	}

	segments := res.Segments
	text := res.Text
	if s.Strategy.UsesContext && contextDuration > 0 {
		segments, text = trimContext(segments, contextDuration)
	}

	cleaned, accepted := filter.Clean(text)
	outcome := "noise"
	if accepted {
		s.PreviousTranscript = cleaned
		outcome = "accepted"
	} else {
		metrics.HallucinationsFiltered.Inc()
	}
	metrics.FinalsTotal.WithLabelValues(s.Strategy.Name, outcome).Inc()

	s.ContextAudio = trailingWindow(rawAudio, s.SampleRate, s.cfg.ContextOverlapMs)

	result := FinalResult{
		Segments:     segments,
		Language:     res.Language,
		ProcessingMs: res.ProcessingMs,
		Accepted:     accepted,
		RawText:      text,
	}
	if accepted {
		result.Text = cleaned
	}
	return result, nil
}

// trimContext drops every segment whose end falls within the prepended
// context tail and shifts the remainder back by contextDuration.
func trimContext(segments []Segment, contextDuration float64) ([]Segment, string) {
	kept := make([]Segment, 0, len(segments))
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.End <= contextDuration {
			continue
		}
		shifted := Segment{Start: seg.Start - contextDuration, End: seg.End - contextDuration, Text: seg.Text}
		if shifted.Start < 0 {
			shifted.Start = 0
		}
		kept = append(kept, shifted)
		texts = append(texts, seg.Text)
	}
	return kept, strings.Join(texts, " ")
}

// trailingWindow returns the trailing windowMs of samples at sampleRate, or
// all of samples if shorter than the window.
func trailingWindow(samples []float32, sampleRate, windowMs int) []float32 {
	n := (sampleRate * windowMs) / 1000
	if n <= 0 || len(samples) <= n {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	out := make([]float32, n)
	copy(out, samples[len(samples)-n:])
	return out
}

func concatSamples(a, b []float32) []float32 {
	out := make([]float32, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
