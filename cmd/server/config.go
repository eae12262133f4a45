package main

import "github.com/wavesignal/sttstream/internal/env"

// config is the server's process-level configuration, assembled entirely
// from environment variables.
type config struct {
	host string
	port string

	whisperBackend   string
	whisperModel     string
	whisperServerURL string
	recognizerPool   int

	partialIntervalMs int
	partialMaxMs      int
	contextOverlapMs  int
	sampleRate        int

	metricsPort       string
	sessionHistoryURL string
	logLevel          string
}

func loadConfig() config {
	return config{
		host: env.Str("HOST", "0.0.0.0"),
		port: env.Str("PORT", "8765"),

		whisperBackend:   env.Str("WHISPER_BACKEND", "http"),
		whisperModel:     env.Str("WHISPER_MODEL", "base.en"),
		whisperServerURL: env.Str("WHISPER_SERVER_URL", "http://localhost:8080"),
		recognizerPool:   env.Int("RECOGNIZER_POOL_SIZE", 1),

		partialIntervalMs: env.Int("PARTIAL_INTERVAL_MS", 500),
		partialMaxMs:      env.Int("PARTIAL_MAX_MS", 3000),
		contextOverlapMs:  env.Int("CONTEXT_OVERLAP_MS", 1000),
		sampleRate:        env.Int("SAMPLE_RATE", 16000),

		metricsPort:       env.Str("METRICS_PORT", ""),
		sessionHistoryURL: env.Str("SESSION_HISTORY_URL", ""),
		logLevel:          env.Str("LOG_LEVEL", "info"),
	}
}
