// Command server hosts the recognition endpoints: it selects a Backend
// Adapter, warms it up, and serves WebSocket transcription sessions plus
// Prometheus metrics and a liveness probe.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wavesignal/sttstream/internal/backend"
	"github.com/wavesignal/sttstream/internal/history"
	"github.com/wavesignal/sttstream/internal/recognizer"
	"github.com/wavesignal/sttstream/internal/registry"
	"github.com/wavesignal/sttstream/internal/server"
	"github.com/wavesignal/sttstream/internal/session"
)

func main() {
	cfg := loadConfig()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.logLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	be, err := selectBackend(cfg)
	if err != nil {
		slog.Error("backend selection failed", "backend", cfg.whisperBackend, "error", err)
		os.Exit(1)
	}

	pool := recognizer.NewPool(be, cfg.recognizerPool)
	defer pool.Close()

	slog.Info("warming up recognizer", "backend", cfg.whisperBackend, "model", cfg.whisperModel)
	if err := pool.Warmup(context.Background(), cfg.sampleRate); err != nil {
		slog.Error("warmup failed", "error", err)
		os.Exit(1)
	}
	slog.Info("recognizer ready")

	var store *history.Store
	if cfg.sessionHistoryURL != "" {
		store, err = history.Open(cfg.sessionHistoryURL)
		if err != nil {
			slog.Error("session history open failed", "error", err)
		} else {
			defer store.Close()
			slog.Info("session history enabled")
		}
	}

	host := server.NewHost(server.HostConfig{
		Transcriber:  pool,
		HistoryStore: store,
		SampleRate:   cfg.sampleRate,
		SessionCfg: session.Config{
			PartialIntervalMs: cfg.partialIntervalMs,
			PartialMaxMs:      cfg.partialMaxMs,
			ContextOverlapMs:  cfg.contextOverlapMs,
		},
	})
	host.SetReady()

	mux := http.NewServeMux()
	host.Register(mux)
	if cfg.metricsPort == "" || cfg.metricsPort == cfg.port {
		mux.Handle("/metrics", promhttp.Handler())
	} else {
		go serveMetrics(cfg.host + ":" + cfg.metricsPort)
	}

	addr := cfg.host + ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv)

	slog.Info("server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func selectBackend(cfg config) (backend.Backend, error) {
	backends := map[string]backend.Backend{
		"mock": backend.NewMockBackend(),
	}
	if cfg.whisperServerURL != "" {
		backends["http"] = backend.NewHTTPBackend(cfg.whisperServerURL, cfg.recognizerPool*4)
	}
	router := registry.NewRouter(backends, "mock")
	return router.Route(cfg.whisperBackend)
}

// serveMetrics exposes /metrics on its own listener when METRICS_PORT
// differs from the main port.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server failed", "error", err)
	}
}

// awaitShutdown blocks until SIGINT/SIGTERM, then drains the HTTP server.
func awaitShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
