// Package server hosts the WebSocket endpoints that front per-connection
// recognition sessions: it upgrades connections, routes the request path to
// a strategy, runs the read loop, and writes partial/final/result/noise
// replies back in trigger order.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wavesignal/sttstream/internal/backend"
	"github.com/wavesignal/sttstream/internal/history"
	"github.com/wavesignal/sttstream/internal/metrics"
	"github.com/wavesignal/sttstream/internal/session"
	"github.com/wavesignal/sttstream/internal/strategy"
	"github.com/wavesignal/sttstream/internal/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HostConfig holds the shared collaborators for all connections.
type HostConfig struct {
	Transcriber  session.Transcriber
	SessionCfg   session.Config
	HistoryStore *history.Store
	SampleRate   int
}

// Host manages WebSocket recognition sessions.
type Host struct {
	cfg   HostConfig
	ready atomic.Bool
}

// NewHost creates a Host with the shared recognizer and session tunables.
func NewHost(cfg HostConfig) *Host {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Host{cfg: cfg}
}

// SetReady marks warmup as complete; Healthz reports it.
func (h *Host) SetReady() { h.ready.Store(true) }

// Register wires the transcription endpoints and the liveness probe onto mux.
func (h *Host) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/transcribe", h.handleBatch)
	mux.HandleFunc("/ws/transcribe/", h.handleStreaming)
	mux.HandleFunc("/healthz", h.handleHealthz)
}

func (h *Host) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleBatch serves one-shot transcribe requests over a persistent
// connection. Batch connections get the prompt strategy's conditioning so
// consecutive requests on one connection benefit from the previous
// transcript.
func (h *Host) handleBatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(r.Context(), conn, strategy.Prompt, "batch")
}

// handleStreaming serves audio_frame/vad_end connections. The trailing path
// segment names the strategy; an unknown name closes the connection with
// policy-violation code 1008 before any session state exists.
func (h *Host) handleStreaming(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/ws/transcribe/")
	strat, lookupErr := strategy.Lookup(name)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if lookupErr != nil {
		slog.Warn("rejecting connection", "path", r.URL.Path, "error", lookupErr)
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, lookupErr.Error())
		conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		return
	}

	h.runSession(r.Context(), conn, strat, "streaming")
}

func (h *Host) runSession(ctx context.Context, conn *websocket.Conn, strat strategy.Strategy, mode string) {
	conn.SetReadLimit(wire.MaxMessageSize)

	sessionID := uuid.NewString()
	log := slog.With("session_id", sessionID, "strategy", strat.Name, "mode", mode)

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	recorder := h.startRecorder(sessionID, strat.Name, mode)
	if recorder != nil {
		defer func() {
			recorder.Close()
			_ = h.cfg.HistoryStore.EndSession(sessionID)
		}()
	}

	sess := session.New(strat, h.cfg.SampleRate, h.cfg.Transcriber, h.cfg.SessionCfg)
	log.Info("session started")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Info("connection closed", "error", err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if fatal := h.handleMessage(ctx, conn, sess, recorder, data, log); fatal {
			return
		}
	}
}

func (h *Host) startRecorder(sessionID, strategyName, mode string) *history.Recorder {
	if h.cfg.HistoryStore == nil {
		return nil
	}
	_ = h.cfg.HistoryStore.CreateSession(sessionID, strategyName, mode)
	return history.NewRecorder(h.cfg.HistoryStore, sessionID)
}

// handleMessage dispatches one inbound text frame by its type tag. A
// malformed frame is logged and skipped; only a not-loaded backend closes
// the connection.
func (h *Host) handleMessage(ctx context.Context, conn *websocket.Conn, sess *session.Session, recorder *history.Recorder, data []byte, log *slog.Logger) (fatal bool) {
	env, err := wire.Decode(data)
	if err != nil {
		log.Warn("skipping malformed message", "stage", "decode", "error", err)
		return false
	}

	switch env.Type {
	case wire.TypeAudioFrame:
		return h.onAudioFrame(ctx, conn, sess, data, log)
	case wire.TypeVADEnd:
		return h.onVADEnd(ctx, conn, sess, recorder, log)
	case wire.TypeTranscribe:
		return h.onTranscribe(ctx, conn, sess, recorder, data, log)
	default:
		log.Warn("skipping message with unknown type", "type", env.Type)
		return false
	}
}

func (h *Host) onAudioFrame(ctx context.Context, conn *websocket.Conn, sess *session.Session, data []byte, log *slog.Logger) bool {
	var msg wire.AudioFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn("skipping malformed message", "stage", "audio_frame", "error", err)
		return false
	}
	samples, err := wire.DecodeAudio(msg.Audio)
	if err != nil {
		log.Warn("skipping malformed message", "stage", "audio_frame", "error", err)
		return false
	}
	if len(samples) == 0 {
		return false
	}
	if msg.SampleRate > 0 {
		sess.SampleRate = msg.SampleRate
	}

	if !sess.OnAudioFrame(samples) {
		return false
	}

	partial, err := sess.Partial(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNotLoaded) {
			log.Error("backend not loaded, closing", "stage", "partial")
			return true
		}
		log.Warn("dropping partial", "stage", "partial", "error", err)
		return false
	}
	if err := conn.WriteJSON(wire.NewPartial(partial.Text, partial.ProcessingMs)); err != nil {
		log.Warn("write partial failed", "error", err)
	}
	return false
}

func (h *Host) onVADEnd(ctx context.Context, conn *websocket.Conn, sess *session.Session, recorder *history.Recorder, log *slog.Logger) bool {
	runID := recorder.StartRun()
	started := time.Now()

	res, ok, err := sess.OnVADEnd(ctx)
	if err != nil {
		recorder.EndRun(runID, msSince(started), "", "error")
		if errors.Is(err, backend.ErrNotLoaded) {
			log.Error("backend not loaded, closing", "stage", "final")
			return true
		}
		log.Warn("dropping final", "stage", "final", "error", err)
		return false
	}
	if !ok {
		// Nothing buffered: answer with an empty final so the client's
		// one-reply-per-vad_end accounting stays balanced.
		recorder.EndRun(runID, msSince(started), "", "empty")
		if werr := conn.WriteJSON(wire.NewFinal("", []wire.Segment{}, "", 0, "")); werr != nil {
			log.Warn("write final failed", "error", werr)
		}
		return false
	}

	status := "accepted"
	text := res.Text
	if !res.Accepted {
		status = "noise"
		text = ""
		log.Info("final rejected as noise", "sample", res.RawText)
	}
	recorder.EndRun(runID, msSince(started), text, status)
	recorder.RecordSpan(runID, "transcribe", started, res.ProcessingMs, text, status, "")

	msg := wire.NewFinal(text, toWireSegments(res.Segments), res.Language, res.ProcessingMs, "")
	if err := conn.WriteJSON(msg); err != nil {
		log.Warn("write final failed", "error", err)
	}
	return false
}

func (h *Host) onTranscribe(ctx context.Context, conn *websocket.Conn, sess *session.Session, recorder *history.Recorder, data []byte, log *slog.Logger) bool {
	var msg wire.Transcribe
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn("skipping malformed message", "stage", "transcribe", "error", err)
		return false
	}
	samples, err := wire.DecodeAudio(msg.Audio)
	if err != nil {
		log.Warn("skipping malformed message", "stage", "transcribe", "error", err)
		return false
	}
	if msg.SampleRate > 0 {
		sess.SampleRate = msg.SampleRate
	}

	traceparent := msg.Traceparent
	if _, ok := wire.ParseTraceparent(traceparent); !ok {
		traceparent = wire.NewTraceparent()
	}

	runID := recorder.StartRun()
	started := time.Now()

	res, err := sess.Transcribe(ctx, samples)
	if err != nil {
		recorder.EndRun(runID, msSince(started), "", "error")
		if errors.Is(err, backend.ErrNotLoaded) {
			log.Error("backend not loaded, closing", "stage", "transcribe")
			return true
		}
		log.Warn("dropping batch reply", "stage", "transcribe", "error", err)
		return false
	}

	if !res.Accepted {
		recorder.EndRun(runID, msSince(started), "", "noise")
		log.Info("batch rejected as noise", "sample", res.RawText)
		if werr := conn.WriteJSON(wire.NewNoise(res.RawText)); werr != nil {
			log.Warn("write noise failed", "error", werr)
		}
		return false
	}

	recorder.EndRun(runID, msSince(started), res.Text, "accepted")
	recorder.RecordSpan(runID, "transcribe", started, res.ProcessingMs, res.Text, "accepted", "")

	reply := wire.NewResult(wire.NewFinal(res.Text, toWireSegments(res.Segments), res.Language, res.ProcessingMs, traceparent))
	if err := conn.WriteJSON(reply); err != nil {
		log.Warn("write result failed", "error", err)
	}
	return false
}

func toWireSegments(segs []session.Segment) []wire.Segment {
	out := make([]wire.Segment, len(segs))
	for i, s := range segs {
		out[i] = wire.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return out
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Milliseconds())
}
