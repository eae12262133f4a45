package client

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wavesignal/sttstream/internal/gate"
	"github.com/wavesignal/sttstream/internal/vad"
)

type alwaysSpeech struct{}

func (alwaysSpeech) IsSpeech(pcm16 []byte, rate int) (bool, error) { return true, nil }
func (alwaysSpeech) Reset()                                        {}

var _ vad.Backend = alwaysSpeech{}

func newTestSession(mode Mode) *Session {
	cfg := DefaultConfig()
	cfg.ServerURL = "ws://example.invalid"
	cfg.Mode = mode
	cfg.Strategy = "hybrid"
	g := gate.New(gate.DefaultConfig(), alwaysSpeech{})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, NewSilenceSource(16000, 480, 0), g, nil, nil, log)
}

func TestWSURLBatch(t *testing.T) {
	s := newTestSession(ModeBatch)
	if got, want := s.wsURL(), "ws://example.invalid/ws/transcribe"; got != want {
		t.Errorf("wsURL() = %q, want %q", got, want)
	}
}

func TestWSURLStreaming(t *testing.T) {
	s := newTestSession(ModeStreaming)
	if got, want := s.wsURL(), "ws://example.invalid/ws/transcribe/hybrid"; got != want {
		t.Errorf("wsURL() = %q, want %q", got, want)
	}
}

func TestFlattenChunks(t *testing.T) {
	chunks := [][]float32{{1, 2}, {3}, {4, 5, 6}}
	got := flattenChunks(chunks)
	want := []float32{1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNonEmpty(t *testing.T) {
	got := nonEmpty([]string{"a", "", "b", ""})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("nonEmpty = %v", got)
	}
}

func TestNoCooldownWithoutSinks(t *testing.T) {
	s := newTestSession(ModeBatch)
	clock := time.Now()
	s.now = func() time.Time { return clock }

	s.onFinalText(context.Background(), "hello there")
	if s.inCooldown() {
		t.Fatal("cooldown should not start when no agent/TTS sink is configured")
	}
	if !s.cooldownUntil.IsZero() {
		t.Errorf("cooldownUntil = %v, want zero", s.cooldownUntil)
	}
}

func TestCooldownExpiry(t *testing.T) {
	s := newTestSession(ModeBatch)
	clock := time.Now()
	s.now = func() time.Time { return clock }

	if s.inCooldown() {
		t.Fatal("should not be in cooldown before any final")
	}
	s.cooldownUntil = clock.Add(500 * time.Millisecond)
	if !s.inCooldown() {
		t.Fatal("should be in cooldown immediately after being set")
	}
	clock = clock.Add(600 * time.Millisecond)
	if s.inCooldown() {
		t.Fatal("cooldown should have expired")
	}
}
