// Command client runs the capture-side session: reads audio from a frame
// source, segments it with the speech gate, and transports utterances
// to a running sttstream server, optionally forwarding replies to an agent
// and a TTS sink.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wavesignal/sttstream/internal/client"
	"github.com/wavesignal/sttstream/internal/gate"
	"github.com/wavesignal/sttstream/internal/vad"
)

func main() {
	cfg := loadConfig()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	backend, err := buildVADBackend(cfg)
	if err != nil {
		log.Error("vad backend init failed", "error", err)
		os.Exit(1)
	}

	gateCfg := gate.DefaultConfig()
	gateCfg.MinEnergy = cfg.MinEnergy
	gateCfg.SilenceMs = cfg.SilenceMs
	gateCfg.PauseMs = cfg.PauseMs
	gateCfg.MaxSpeechMs = cfg.MaxSpeechMs
	gateCfg.OnsetThreshold = cfg.OnsetThresh
	g := gate.New(gateCfg, backend)

	agentSink := client.NewAgentSink(cfg.AgentURL, cfg.AgentCharacter, 60*time.Second, log)
	ttsSink := client.NewTTSSink(cfg.TTSURL, cfg.TTSVoice, 60*time.Second, log)

	sessCfg := client.DefaultConfig()
	sessCfg.ServerURL = cfg.ServerURL
	sessCfg.Mode = client.Mode(cfg.ClientMode)
	sessCfg.Strategy = cfg.Strategy
	sessCfg.ReconnectDelay = cfg.reconnectInterval()
	sessCfg.CooldownMs = cfg.AgentCooldownMs
	sessCfg.AgentURL = cfg.AgentURL
	sessCfg.AgentCharacter = cfg.AgentCharacter
	sessCfg.TTSURL = cfg.TTSURL
	sessCfg.TTSVoice = cfg.TTSVoice

	source := newMicrophoneSource(sessCfg.SampleRate, 480)

	sess := client.New(sessCfg, source, g, agentSink, ttsSink, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("client starting", "server_url", cfg.ServerURL, "mode", cfg.ClientMode, "strategy", cfg.Strategy)
	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("client exited", "error", err)
		os.Exit(1)
	}
	log.Info("client stopped")
}

func buildVADBackend(cfg config) (vad.Backend, error) {
	switch cfg.VADBackend {
	case "silero":
		return vad.NewSileroBackend(cfg.ORTLibPath, cfg.ORTModel, 0.5)
	default:
		return vad.NewWebRTCBackend(), nil
	}
}
