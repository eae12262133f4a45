package main

import (
	"time"

	"github.com/wavesignal/sttstream/internal/env"
)

// config is the client's process-level configuration, assembled entirely
// from environment variables.
type config struct {
	ServerURL  string
	ClientMode string
	Strategy   string

	MinEnergy   float64
	SilenceMs   int
	PauseMs     int
	MaxSpeechMs int
	OnsetThresh int
	VADBackend  string
	ORTLibPath  string
	ORTModel    string

	AgentURL        string
	AgentCooldownMs int
	AgentCharacter  string
	TTSURL          string
	TTSVoice        string

	LogLevel string
}

func loadConfig() config {
	return config{
		ServerURL:  env.Str("SERVER_URL", "ws://localhost:8765"),
		ClientMode: env.Str("CLIENT_MODE", "batch"),
		Strategy:   env.Str("STRATEGY", "hybrid"),

		MinEnergy:   env.Float("MIN_ENERGY", 0.01),
		SilenceMs:   env.Int("SILENCE_MS", 1000),
		PauseMs:     env.Int("PAUSE_MS", 400),
		MaxSpeechMs: env.Int("MAX_SPEECH_MS", 60000),
		OnsetThresh: env.Int("ONSET_THRESHOLD", 3),
		VADBackend:  env.Str("VAD_BACKEND", "webrtc"),
		ORTLibPath:  env.Str("ONNXRUNTIME_LIB_PATH", ""),
		ORTModel:    env.Str("SILERO_MODEL_PATH", ""),

		AgentURL:        env.Str("AGENT_URL", ""),
		AgentCooldownMs: env.Int("AGENT_COOLDOWN_MS", 2000),
		AgentCharacter:  env.Str("AGENT_CHARACTER", ""),
		TTSURL:          env.Str("TTS_URL", ""),
		TTSVoice:        env.Str("TTS_VOICE", ""),

		LogLevel: env.Str("LOG_LEVEL", "info"),
	}
}

func (c config) reconnectInterval() time.Duration { return 5 * time.Second }
