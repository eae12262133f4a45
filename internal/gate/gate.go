// Package gate implements the speech gate: a per-frame VAD+
// energy fusion classifier with onset debounce, silence counting, and a
// max-duration safety cap, driving utterance-boundary detection for the
// Client Session. It is driven by the frame stream, the pluggable VAD
// Backend (internal/vad) it is wired to, and a clock that measures utterance
// duration for the max-duration cap.
package gate

import (
	"math"
	"time"

	"github.com/wavesignal/sttstream/internal/audio"
	"github.com/wavesignal/sttstream/internal/vad"
)

// Trigger reports what, if anything, a frame caused the gate to do.
type Trigger int

const (
	// TriggerNone means the frame caused no utterance-boundary event.
	TriggerNone Trigger = iota
	// TriggerPause is a streaming mid-utterance cut: send accumulated
	// chunks as a partial and keep listening within the same utterance.
	TriggerPause
	// TriggerFinal ends the utterance: quiet tail or max-duration cap.
	TriggerFinal
)

// Config holds the gate's tunables. FrameMs is the fixed
// frame duration the caller feeds in (default 30ms / 480 samples at 16kHz).
type Config struct {
	SampleRate     int
	FrameMs        int
	OnsetThreshold int     // consecutive speech frames to enter speaking state
	SilenceMs      int     // quiet tail before a full utterance ends
	PauseMs        int     // 0 disables streaming mid-utterance cuts; must be < SilenceMs
	MaxSpeechMs    int     // safety cap on utterance duration
	MinSpeechMs    int     // below this, the utterance is discarded at finalize
	MinEnergy      float64 // RMS energy floor for speech_detected and for the finalize decision
}

// DefaultConfig returns the standard 16 kHz / 30 ms framing defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		FrameMs:        30,
		OnsetThreshold: 3,
		SilenceMs:      1000,
		PauseMs:        400,
		MaxSpeechMs:    60000,
		MinSpeechMs:    200,
		MinEnergy:      0.01,
	}
}

func (c Config) silenceChunks() int { return msToChunks(c.SilenceMs, c.FrameMs) }
func (c Config) pauseChunks() int   { return msToChunks(c.PauseMs, c.FrameMs) }

func msToChunks(ms, frameMs int) int {
	if frameMs <= 0 {
		return 0
	}
	return ms / frameMs
}

// State is the per-utterance aggregate the gate loop mutates.
type State struct {
	IsSpeaking      bool
	OnsetCount      int
	SilenceCount    int
	Chunks          [][]float32
	EnergySum       float64
	EnergyCount     int
	SpeechStartTime time.Time

	pausedAlready bool
}

// DurationMs is the elapsed time since SpeechStartTime, as of now.
func (s State) DurationMs(now time.Time) float64 {
	if s.SpeechStartTime.IsZero() {
		return 0
	}
	return float64(now.Sub(s.SpeechStartTime).Milliseconds())
}

// AvgEnergy is the mean per-frame RMS energy over the utterance so far.
func (s State) AvgEnergy() float64 {
	if s.EnergyCount == 0 {
		return 0
	}
	return s.EnergySum / float64(s.EnergyCount)
}

// Gate is the stateful per-frame classifier and utterance assembler.
type Gate struct {
	cfg   Config
	vad   vad.Backend
	state State
	now   func() time.Time
}

// New creates a Gate wired to the given VAD Backend.
func New(cfg Config, vadBackend vad.Backend) *Gate {
	return &Gate{cfg: cfg, vad: vadBackend, now: time.Now}
}

// State returns the current SpeechState (read-only snapshot by value).
func (g *Gate) State() State { return g.state }

// Config returns the gate's tunables, primarily so callers can apply the
// min-duration/min-energy discard check on finalization.
func (g *Gate) Config() Config { return g.cfg }

// Reset clears the utterance state and the VAD backend's adaptation state,
// called on finalization and when entering a cooldown window.
func (g *Gate) Reset() {
	g.state = State{}
	g.vad.Reset()
}

// ProcessFrame classifies one frame and advances the state machine,
// returning any utterance-boundary trigger.
func (g *Gate) ProcessFrame(frame []float32) (Trigger, error) {
	energy := rmsEnergy(frame)

	pcm16 := audio.FloatToPCM16(frame)
	vadSpeech, err := g.vad.IsSpeech(pcm16, g.cfg.SampleRate)
	if err != nil {
		return TriggerNone, err
	}
	speechDetected := vadSpeech && energy >= g.cfg.MinEnergy

	if !g.state.IsSpeaking {
		return g.processOnset(speechDetected), nil
	}
	return g.processSpeaking(frame, energy, speechDetected), nil
}

func (g *Gate) processOnset(speechDetected bool) Trigger {
	if !speechDetected {
		g.state.OnsetCount = 0
		return TriggerNone
	}
	g.state.OnsetCount++
	if g.state.OnsetCount < g.cfg.OnsetThreshold {
		return TriggerNone
	}
	g.state.IsSpeaking = true
	g.state.SpeechStartTime = g.now()
	g.state.OnsetCount = 0
	return TriggerNone
}

func (g *Gate) processSpeaking(frame []float32, energy float64, speechDetected bool) Trigger {
	g.state.Chunks = append(g.state.Chunks, frame)
	g.state.EnergySum += energy
	g.state.EnergyCount++

	if speechDetected {
		g.state.SilenceCount = 0
		g.state.pausedAlready = false
	} else {
		g.state.SilenceCount++
	}

	if g.state.SilenceCount >= g.cfg.silenceChunks() {
		return TriggerFinal
	}
	if g.cfg.PauseMs > 0 && g.cfg.PauseMs < g.cfg.SilenceMs &&
		g.state.SilenceCount >= g.cfg.pauseChunks() && !g.state.pausedAlready {
		g.state.pausedAlready = true
		return TriggerPause
	}
	if g.state.DurationMs(g.now()) >= float64(g.cfg.MaxSpeechMs) {
		return TriggerFinal
	}
	return TriggerNone
}

// TakePauseChunks returns and clears the accumulated chunks for a streaming
// mid-utterance cut, leaving IsSpeaking true and starting a fresh chunk
// window.
func (g *Gate) TakePauseChunks() [][]float32 {
	chunks := g.state.Chunks
	g.state.Chunks = nil
	return chunks
}

func rmsEnergy(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
