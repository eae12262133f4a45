// Package client implements the capture-side session: the top-level event
// loop that runs a frame source, drives the speech gate, transports
// utterance audio over the wire protocol, manages reconnection, and imposes
// a microphone-cooldown window around agent/TTS playback.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wavesignal/sttstream/internal/gate"
	"github.com/wavesignal/sttstream/internal/metrics"
	"github.com/wavesignal/sttstream/internal/wire"
)

// Mode selects batch or streaming transport.
type Mode string

const (
	ModeBatch     Mode = "batch"
	ModeStreaming Mode = "streaming"
)

// Config holds the client session's tunables.
type Config struct {
	ServerURL      string
	Mode           Mode
	Strategy       string // path segment for streaming mode; ignored in batch
	SampleRate     int
	ReconnectDelay time.Duration
	CooldownMs     int
	AgentURL       string
	AgentCharacter string
	AgentTimeout   time.Duration
	TTSURL         string
	TTSVoice       string
	TTSTimeout     time.Duration
}

// DefaultConfig returns sane client defaults; ServerURL/Mode must still be
// set by the caller.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		ReconnectDelay: 2 * time.Second,
		CooldownMs:     800,
		AgentTimeout:   60 * time.Second,
		TTSTimeout:     60 * time.Second,
	}
}

// Session is the Client Session: one Frame Source, one Speech Gate, one
// wire connection (reconnected as needed), and the optional Agent/TTS sinks.
type Session struct {
	cfg       Config
	source    FrameSource
	gate      *gate.Gate
	agentSink *AgentSink
	ttsSink   *TTSSink
	log       *slog.Logger

	sessionID string
	conn      *websocket.Conn

	cooldownUntil time.Time
	now           func() time.Time

	pendingPartials []string
}

// New builds a Client Session. agentSink/ttsSink may be nil when those
// external collaborators are not configured.
func New(cfg Config, source FrameSource, g *gate.Gate, agentSink *AgentSink, ttsSink *TTSSink, log *slog.Logger) *Session {
	return &Session{
		cfg:       cfg,
		source:    source,
		gate:      g,
		agentSink: agentSink,
		ttsSink:   ttsSink,
		log:       log,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// Run drives the event loop until ctx is canceled. Frame reads happen on
// the frame source's own goroutine; this loop and the wire reader run
// cooperatively against the connection. While the transport is down, frames
// keep flowing through the gate so the user's activity stays observable,
// but finished utterances are dropped with a log line.
func (s *Session) Run(ctx context.Context) error {
	frames := s.source.Frames(ctx)
	for {
		if err := s.runConnected(ctx, frames); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("connection lost, reconnecting", "error", err, "delay", s.cfg.ReconnectDelay)
		} else {
			return nil // frame source exhausted
		}
		if exhausted := s.runDisconnected(ctx, frames); exhausted {
			return ctx.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// runConnected dials the server and runs the frame-feed loop until the
// connection drops or ctx is canceled. Recognition state (the server-side
// previous transcript and context audio) starts fresh on every reconnect.
func (s *Session) runConnected(ctx context.Context, frames <-chan []float32) error {
	url := s.wsURL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", url, err)
	}
	s.conn = conn
	defer conn.Close()
	conn.SetReadLimit(wire.MaxMessageSize)

	replies := make(chan []byte)
	readErrs := make(chan error, 1)
	go s.readLoop(conn, replies, readErrs)

	s.gate.Reset()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrs:
			return err
		case raw := <-replies:
			s.handleReply(ctx, raw)
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.feedFrame(ctx, frame); err != nil {
				return err
			}
		}
	}
}

// runDisconnected keeps the gate running against incoming frames for one
// reconnect interval, discarding any utterance it finalizes. Returns true
// if the frame source closed.
func (s *Session) runDisconnected(ctx context.Context, frames <-chan []float32) (exhausted bool) {
	deadline := time.After(s.cfg.ReconnectDelay)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case frame, ok := <-frames:
			if !ok {
				return true
			}
			trig, err := s.gate.ProcessFrame(frame)
			if err != nil {
				continue
			}
			if trig == gate.TriggerFinal || trig == gate.TriggerPause {
				s.log.Info("dropping utterance while disconnected", "duration_ms", s.gate.State().DurationMs(s.now()))
				s.gate.Reset()
			}
		}
	}
}

func (s *Session) wsURL() string {
	if s.cfg.Mode == ModeStreaming && s.cfg.Strategy != "" {
		return strings.TrimRight(s.cfg.ServerURL, "/") + "/ws/transcribe/" + s.cfg.Strategy
	}
	return strings.TrimRight(s.cfg.ServerURL, "/") + "/ws/transcribe"
}

// readLoop runs on its own goroutine, forwarding raw inbound text frames to
// the main loop for decoding; it never touches Session state directly,
// keeping ownership of gate/cooldown state single-threaded.
func (s *Session) readLoop(conn *websocket.Conn, out chan<- []byte, errs chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errs <- fmt.Errorf("client: read: %w", err)
			return
		}
		out <- data
	}
}

// feedFrame discards frames during cooldown (to avoid transcribing the
// system's own TTS/agent playback), otherwise drives the Speech Gate and
// transports utterance audio per the configured mode.
func (s *Session) feedFrame(ctx context.Context, frame []float32) error {
	if s.inCooldown() {
		return nil
	}
	trig, err := s.gate.ProcessFrame(frame)
	if err != nil {
		return fmt.Errorf("client: gate: %w", err)
	}

	switch trig {
	case gate.TriggerPause:
		if s.cfg.Mode == ModeStreaming {
			return s.sendAudioFrame(s.gate.TakePauseChunks())
		}
	case gate.TriggerFinal:
		st := s.gate.State()
		defer s.gate.Reset()
		gcfg := s.gate.Config()
		if st.DurationMs(s.now()) < float64(gcfg.MinSpeechMs) || st.AvgEnergy() < gcfg.MinEnergy {
			s.log.Debug("discarding short/quiet utterance", "duration_ms", st.DurationMs(s.now()), "avg_energy", st.AvgEnergy())
			return nil
		}
		metrics.SpeechSegments.Inc()
		chunks := st.Chunks
		if s.cfg.Mode == ModeStreaming {
			if len(chunks) > 0 {
				if err := s.sendAudioFrame(chunks); err != nil {
					return err
				}
			}
			return s.sendVADEnd()
		}
		return s.sendBatch(chunks)
	}
	return nil
}

func (s *Session) inCooldown() bool {
	if s.cooldownUntil.IsZero() {
		return false
	}
	if s.now().After(s.cooldownUntil) {
		s.cooldownUntil = time.Time{}
		return false
	}
	return true
}

// nonEmpty filters out empty strings, used when joining partial texts into
// a streaming-mode utterance summary.
func nonEmpty(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func flattenChunks(chunks [][]float32) []float32 {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]float32, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func (s *Session) sendAudioFrame(chunks [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	msg := wire.AudioFrame{
		Type:       wire.TypeAudioFrame,
		Audio:      wire.EncodeAudio(flattenChunks(chunks)),
		SampleRate: s.cfg.SampleRate,
	}
	return s.writeJSON(msg)
}

func (s *Session) sendVADEnd() error {
	return s.writeJSON(wire.VADEnd{Type: wire.TypeVADEnd})
}

func (s *Session) sendBatch(chunks [][]float32) error {
	msg := wire.Transcribe{
		Type:       wire.TypeTranscribe,
		Audio:      wire.EncodeAudio(flattenChunks(chunks)),
		SampleRate: s.cfg.SampleRate,
		SessionID:  s.sessionID,
	}
	return s.writeJSON(msg)
}

func (s *Session) writeJSON(v any) error {
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

// handleReply decodes a raw server message by its type tag: partials are
// logged, accepted finals/results are forwarded to the Agent/TTS sinks and
// start cooldown, and noise messages are logged and otherwise ignored.
func (s *Session) handleReply(ctx context.Context, raw []byte) {
	env, err := wire.Decode(raw)
	if err != nil {
		s.log.Warn("dropping malformed server message", "error", err)
		return
	}

	switch env.Type {
	case wire.TypePartial:
		var p wire.Partial
		if err := json.Unmarshal(raw, &p); err != nil {
			s.log.Warn("bad partial message", "error", err)
			return
		}
		s.log.Info("partial", "session_id", s.sessionID, "text", p.Text)
		if p.Text != "" {
			s.pendingPartials = append(s.pendingPartials, p.Text)
		}
	case wire.TypeFinal:
		var f wire.Final
		if err := json.Unmarshal(raw, &f); err != nil {
			s.log.Warn("bad final message", "error", err)
			return
		}
		summary := f.Text
		if s.cfg.Mode == ModeStreaming {
			parts := append(append([]string{}, s.pendingPartials...), f.Text)
			summary = strings.Join(nonEmpty(parts), " ")
		}
		s.pendingPartials = nil
		if summary != "" {
			s.onFinalText(ctx, summary)
		}
	case wire.TypeResult:
		var r wire.Result
		if err := json.Unmarshal(raw, &r); err != nil {
			s.log.Warn("bad result message", "error", err)
			return
		}
		if r.Text != "" {
			s.onFinalText(ctx, r.Text)
		}
	case wire.TypeNoise:
		s.log.Info("noise rejected", "session_id", s.sessionID)
	}
}

// onFinalText prints an accepted transcript and, when an agent sink is
// configured, forwards it and hands the reply to the TTS sink. Cooldown
// starts only once a reply has actually been produced; with no sinks the
// transcript is printed and listening resumes immediately.
func (s *Session) onFinalText(ctx context.Context, text string) {
	s.log.Info("transcript", "session_id", s.sessionID, "text", text)
	if s.agentSink == nil {
		return
	}

	reply, err := s.agentSink.Send(ctx, s.sessionID, text)
	if err != nil {
		s.log.Warn("agent sink failed", "error", err)
		return
	}
	if reply == "" {
		return
	}
	s.log.Info("reply", "session_id", s.sessionID, "text", reply)

	if s.ttsSink != nil {
		if _, err := s.ttsSink.Synthesize(ctx, reply); err != nil {
			s.log.Warn("tts sink failed", "error", err)
		}
	}

	s.cooldownUntil = s.now().Add(time.Duration(s.cfg.CooldownMs) * time.Millisecond)
	s.gate.Reset()
}
