package wire

import (
	"math"
	"testing"
)

func TestAudioRoundTrip(t *testing.T) {
	samples := []float32{-1.0, -0.25, 0.0, 0.5, 0.9999, 1.0}
	encoded := EncodeAudio(samples)
	decoded, err := DecodeAudio(encoded)
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("length mismatch: got %d want %d", len(decoded), len(samples))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("sample %d: got %v want %v", i, decoded[i], samples[i])
		}
	}
}

func TestDecodeAudioBadBase64(t *testing.T) {
	if _, err := DecodeAudio("not-base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestDecodeAudioBadLength(t *testing.T) {
	// 3 bytes of valid base64 payload, not a multiple of 4.
	if _, err := DecodeAudio("YWJj"); err == nil {
		t.Fatal("expected error for payload length not a multiple of 4")
	}
}

func TestTraceparentRoundTrip(t *testing.T) {
	tp := NewTraceparent()
	id, ok := ParseTraceparent(tp)
	if !ok {
		t.Fatalf("ParseTraceparent rejected generated traceparent %q", tp)
	}
	if len(id) != 32 {
		t.Errorf("trace id length = %d, want 32", len(id))
	}
}

func TestParseTraceparentRejectsMalformed(t *testing.T) {
	cases := []string{"", "garbage", "00-short-short-01", "01-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	for _, c := range cases {
		if _, ok := ParseTraceparent(c); ok {
			t.Errorf("ParseTraceparent(%q) unexpectedly accepted", c)
		}
	}
}

func TestEnvelopeDecode(t *testing.T) {
	env, err := Decode([]byte(`{"type":"vad_end"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Type != TypeVADEnd {
		t.Errorf("Type = %q, want %q", env.Type, TypeVADEnd)
	}
}

func TestEncodeAudioPreservesSpecialFloats(t *testing.T) {
	samples := []float32{float32(math.Inf(1)), float32(math.Inf(-1))}
	decoded, err := DecodeAudio(EncodeAudio(samples))
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("sample %d: got %v want %v", i, decoded[i], samples[i])
		}
	}
}
