package audio

import "testing"

func TestResamplePassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("passthrough changed length: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("passthrough changed sample %d: got %v want %v", i, out[i], in[i])
		}
	}
}

func TestResampleDownsampleLength(t *testing.T) {
	in := make([]float32, 160) // 10ms at 16kHz
	out := Resample(in, 16000, 8000)
	want := 80
	if len(out) != want {
		t.Errorf("Resample length = %d, want %d", len(out), want)
	}
}

func TestResampleUpsampleLength(t *testing.T) {
	in := make([]float32, 80) // 10ms at 8kHz
	out := Resample(in, 8000, 16000)
	want := 160
	if len(out) != want {
		t.Errorf("Resample length = %d, want %d", len(out), want)
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{-1.0, -0.5, 0.0, 0.5, 0.999}
	bytes := FloatToPCM16(in)
	out := DecodePCM16(bytes)
	if len(out) != len(in) {
		t.Fatalf("round trip changed length: got %d want %d", len(out), len(in))
	}
	for i := range in {
		diff := float64(out[i] - in[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.001 {
			t.Errorf("sample %d: round trip %v -> %v, diff %v too large", i, in[i], out[i], diff)
		}
	}
}
