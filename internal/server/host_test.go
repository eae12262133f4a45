package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wavesignal/sttstream/internal/backend"
	"github.com/wavesignal/sttstream/internal/session"
	"github.com/wavesignal/sttstream/internal/wire"
)

func newTestServer(t *testing.T, be backend.Backend) *httptest.Server {
	t.Helper()
	host := NewHost(HostConfig{
		Transcriber: be,
		SessionCfg:  session.DefaultConfig(),
		SampleRate:  16000,
	})
	host.SetReady()
	mux := http.NewServeMux()
	host.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readMessage[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func TestUnknownStrategyClosesWithPolicyViolation(t *testing.T) {
	srv := newTestServer(t, backend.NewMockBackend())
	conn := dial(t, srv, "/ws/transcribe/bogus")

	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
}

func TestBatchTranscribeResult(t *testing.T) {
	be := backend.NewMockBackend()
	be.Respond = func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{
			Text:         "hello",
			Segments:     []backend.Segment{{Start: 0, End: 1, Text: "hello"}},
			Language:     "en",
			ProcessingMs: 42,
		}, nil
	}
	srv := newTestServer(t, be)
	conn := dial(t, srv, "/ws/transcribe")

	req := wire.Transcribe{
		Type:       wire.TypeTranscribe,
		Audio:      wire.EncodeAudio(make([]float32, 16000)),
		SampleRate: 16000,
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	res := readMessage[wire.Result](t, conn)
	if res.Type != wire.TypeResult {
		t.Errorf("type = %q, want %q", res.Type, wire.TypeResult)
	}
	if res.Text != "hello" || res.Language != "en" || res.ProcessingTimeMs != 42 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Segments) != 1 || res.Segments[0].Text != "hello" {
		t.Errorf("unexpected segments: %+v", res.Segments)
	}
	if _, ok := wire.ParseTraceparent(res.Traceparent); !ok {
		t.Errorf("reply traceparent %q is not well-formed", res.Traceparent)
	}
}

func TestBatchHallucinationEmitsNoise(t *testing.T) {
	be := backend.NewMockBackend()
	be.Respond = func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{Text: "lililili lili lili lili lili"}, nil
	}
	srv := newTestServer(t, be)
	conn := dial(t, srv, "/ws/transcribe")

	req := wire.Transcribe{
		Type:       wire.TypeTranscribe,
		Audio:      wire.EncodeAudio(make([]float32, 16000)),
		SampleRate: 16000,
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	noise := readMessage[wire.Noise](t, conn)
	if noise.Type != wire.TypeNoise {
		t.Errorf("type = %q, want %q", noise.Type, wire.TypeNoise)
	}
	if noise.Sample != "lililili lili lili lili lili" {
		t.Errorf("sample = %q", noise.Sample)
	}
}

func TestStreamingFrameThenVADEnd(t *testing.T) {
	be := backend.NewMockBackend()
	be.Respond = func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{Text: "streamed words here", Language: "en"}, nil
	}
	srv := newTestServer(t, be)
	conn := dial(t, srv, "/ws/transcribe/hybrid")

	frame := wire.AudioFrame{
		Type:       wire.TypeAudioFrame,
		Audio:      wire.EncodeAudio(make([]float32, 480)),
		SampleRate: 16000,
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := conn.WriteJSON(wire.VADEnd{Type: wire.TypeVADEnd}); err != nil {
		t.Fatalf("write vad_end: %v", err)
	}

	final := readMessage[wire.Final](t, conn)
	if final.Type != wire.TypeFinal {
		t.Errorf("type = %q, want %q", final.Type, wire.TypeFinal)
	}
	if final.Text != "streamed words here" {
		t.Errorf("text = %q", final.Text)
	}
}

func TestStreamingDoubleVADEndSecondFinalIsEmpty(t *testing.T) {
	be := backend.NewMockBackend()
	be.Respond = func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{Text: "streamed words here", Language: "en"}, nil
	}
	srv := newTestServer(t, be)
	conn := dial(t, srv, "/ws/transcribe/prompt")

	frame := wire.AudioFrame{
		Type:       wire.TypeAudioFrame,
		Audio:      wire.EncodeAudio(make([]float32, 480)),
		SampleRate: 16000,
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	conn.WriteJSON(wire.VADEnd{Type: wire.TypeVADEnd})
	conn.WriteJSON(wire.VADEnd{Type: wire.TypeVADEnd})

	first := readMessage[wire.Final](t, conn)
	if first.Text == "" {
		t.Error("first final should carry text")
	}
	second := readMessage[wire.Final](t, conn)
	if second.Text != "" {
		t.Errorf("second final text = %q, want empty", second.Text)
	}
}

func TestMalformedMessageKeepsConnectionOpen(t *testing.T) {
	be := backend.NewMockBackend()
	be.Respond = func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{Text: "still working fine", Language: "en"}, nil
	}
	srv := newTestServer(t, be)
	conn := dial(t, srv, "/ws/transcribe")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	req := wire.Transcribe{
		Type:       wire.TypeTranscribe,
		Audio:      wire.EncodeAudio(make([]float32, 16000)),
		SampleRate: 16000,
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := readMessage[wire.Result](t, conn)
	if res.Text != "still working fine" {
		t.Errorf("text = %q after malformed frame", res.Text)
	}
}

func TestHealthzReflectsReadiness(t *testing.T) {
	host := NewHost(HostConfig{Transcriber: backend.NewMockBackend(), SessionCfg: session.DefaultConfig()})
	mux := http.NewServeMux()
	host.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("before warmup: status = %d, want 503", resp.StatusCode)
	}

	host.SetReady()
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("after warmup: status = %d, want 200", resp.StatusCode)
	}
}
