package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// AgentSink forwards an accepted final transcript to an external dialogue
// agent over its own WebSocket connection. It is optional: a nil *AgentSink
// is always a no-op.
type AgentSink struct {
	url       string
	character string
	timeout   time.Duration
	log       *slog.Logger
}

// NewAgentSink builds an AgentSink, or returns nil if url is empty so callers
// can treat a disabled sink uniformly with an enabled one.
func NewAgentSink(url, character string, timeout time.Duration, log *slog.Logger) *AgentSink {
	if url == "" {
		return nil
	}
	return &AgentSink{url: url, character: character, timeout: timeout, log: log}
}

type agentTurn struct {
	SessionID string `json:"session_id"`
	Character string `json:"character,omitempty"`
	Text      string `json:"text"`
}

// Send delivers one final transcript to the agent and returns its reply
// text, or an error if the round trip fails or exceeds the sink's timeout.
func (a *AgentSink) Send(ctx context.Context, sessionID, text string) (string, error) {
	if a == nil {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: a.timeout}
	conn, _, err := dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return "", fmt.Errorf("client: agent sink dial: %w", err)
	}
	defer conn.Close()

	turn := agentTurn{SessionID: sessionID, Character: a.character, Text: text}
	if err := conn.WriteJSON(turn); err != nil {
		return "", fmt.Errorf("client: agent sink write: %w", err)
	}

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)
	var reply agentTurn
	if err := conn.ReadJSON(&reply); err != nil {
		return "", fmt.Errorf("client: agent sink read: %w", err)
	}
	a.log.Debug("agent turn complete", "session_id", sessionID, "reply_len", len(reply.Text))
	return reply.Text, nil
}

// TTSSink synthesizes agent replies to audio over HTTP. Optional: a nil
// *TTSSink is always a no-op.
type TTSSink struct {
	url    string
	voice  string
	client *http.Client
	log    *slog.Logger
}

// NewTTSSink builds a TTSSink, or nil if url is empty.
func NewTTSSink(url, voice string, timeout time.Duration, log *slog.Logger) *TTSSink {
	if url == "" {
		return nil
	}
	return &TTSSink{url: url, voice: voice, client: &http.Client{Timeout: timeout}, log: log}
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize posts text to the TTS endpoint and returns the raw audio bytes
// of the response body (format is the TTS service's own concern). The Client
// Session discards the returned bytes; it does not play them back.
func (t *TTSSink) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	body, err := json.Marshal(ttsRequest{Text: text, Voice: t.voice})
	if err != nil {
		return nil, fmt.Errorf("client: tts sink encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: tts sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: tts sink call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: tts sink: unexpected status %d", resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("client: tts sink read: %w", err)
	}
	t.log.Debug("tts synthesized", "bytes", buf.Len())
	return buf.Bytes(), nil
}
