// Package wire implements the JSON message catalog exchanged over the
// persistent bidirectional connection between Client Session and Server
// Session, plus the base64 float32 audio-payload codec and a
// minimal W3C traceparent helper for the opaque correlation string the
// protocol carries but never interprets.
package wire

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
)

// Message type tags.
const (
	TypeAudioFrame = "audio_frame"
	TypeVADEnd     = "vad_end"
	TypeTranscribe = "transcribe"
	TypePartial    = "partial"
	TypeFinal      = "final"
	TypeResult     = "result"
	TypeNoise      = "noise"
)

// MaxMessageSize is the maximum accepted WebSocket message size.
const MaxMessageSize = 10 * 1024 * 1024

// Envelope is the minimal shape needed to dispatch an inbound message by its
// "type" tag before unmarshaling into a concrete message struct.
type Envelope struct {
	Type string `json:"type"`
}

// AudioFrame is the streaming client's audio-bearing message.
type AudioFrame struct {
	Type       string `json:"type"`
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate"`
}

// VADEnd signals the end of an utterance in streaming mode.
type VADEnd struct {
	Type string `json:"type"`
}

// Transcribe is the batch client's one-shot request.
type Transcribe struct {
	Type        string `json:"type"`
	Audio       string `json:"audio"`
	SampleRate  int    `json:"sample_rate"`
	SessionID   string `json:"session_id,omitempty"`
	Traceparent string `json:"traceparent,omitempty"`
}

// Segment is a timestamped span of recognized text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Partial is a tentative mid-utterance transcript.
type Partial struct {
	Type             string  `json:"type"`
	Text             string  `json:"text"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Final is the committed transcript for an utterance (streaming mode).
type Final struct {
	Type             string    `json:"type"`
	Text             string    `json:"text"`
	Segments         []Segment `json:"segments"`
	Language         string    `json:"language"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	Traceparent      string    `json:"traceparent,omitempty"`
}

// Result is the batch-mode alias of Final; same shape, different tag.
type Result Final

// Noise reports a hallucination rejection.
type Noise struct {
	Type   string `json:"type"`
	Sample string `json:"sample"`
}

// NewPartial builds a tagged partial message.
func NewPartial(text string, processingMs float64) Partial {
	return Partial{Type: TypePartial, Text: text, ProcessingTimeMs: processingMs}
}

// NewFinal builds a tagged final message.
func NewFinal(text string, segments []Segment, language string, processingMs float64, traceparent string) Final {
	return Final{
		Type:             TypeFinal,
		Text:             text,
		Segments:         segments,
		Language:         language,
		ProcessingTimeMs: processingMs,
		Traceparent:      traceparent,
	}
}

// NewResult builds a tagged batch-mode result message from a Final.
func NewResult(f Final) Result {
	r := Result(f)
	r.Type = TypeResult
	return r
}

// NewNoise builds a tagged hallucination-rejection message.
func NewNoise(sample string) Noise {
	return Noise{Type: TypeNoise, Sample: sample}
}

// EncodeAudio base64-encodes little-endian float32 PCM samples for the wire.
func EncodeAudio(samples []float32) string {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeAudio reverses EncodeAudio. Returns an error if the payload is not
// valid base64 or its length is not a multiple of 4 bytes.
func DecodeAudio(encoded string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode audio base64: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("decode audio: length %d not a multiple of 4", len(buf))
	}
	samples := make([]float32, len(buf)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return samples, nil
}

var traceparentRe = regexp.MustCompile(`^00-([0-9a-f]{32})-([0-9a-f]{16})-0[01]$`)

// ParseTraceparent validates a W3C traceparent string of the form
// "00-<32hex>-<16hex>-01" (a "-00" flags field is accepted too), returning
// its trace-id component. ok is false for an empty or malformed string; the
// server then replies with a fresh value from NewTraceparent rather than
// treating it as an error.
func ParseTraceparent(s string) (traceID string, ok bool) {
	m := traceparentRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NewTraceparent generates a fresh W3C traceparent string with a random
// trace-id and span-id, sampled flag set. Used by the server to re-emit a
// trace context on replies when the client didn't supply one.
func NewTraceparent() string {
	traceID := randomHex(16)
	spanID := randomHex(8)
	return "00-" + traceID + "-" + spanID + "-01"
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure is effectively unrecoverable; fall back to an
		// all-zero id rather than panic in a request-handling path.
		return hex.EncodeToString(make([]byte, n))
	}
	return hex.EncodeToString(b)
}

// Decode unmarshals a raw inbound frame into its envelope for type
// dispatch. Callers re-unmarshal into the concrete type once the tag is
// known.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
