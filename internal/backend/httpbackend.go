package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/wavesignal/sttstream/internal/audio"
	"github.com/wavesignal/sttstream/internal/metrics"
)

// HTTPBackend is a sidecar adapter: it normalizes to NativeRate, encodes the
// audio as WAV, and POSTs it to an external whisper.cpp-server-style HTTP
// recognizer. It is registered under WHISPER_BACKEND=http.
type HTTPBackend struct {
	url    string
	client *http.Client
}

// NewHTTPBackend creates a sidecar adapter pointing at url (a whisper.cpp
// server or compatible HTTP recognizer), with poolSize idle connections kept
// warm for it.
func NewHTTPBackend(url string, poolSize int) *HTTPBackend {
	return &HTTPBackend{
		url:    url,
		client: newInferenceClient(poolSize),
	}
}

// newInferenceClient builds the http.Client used for recognizer uploads.
// Requests carry whole-utterance WAV bodies, so the overall timeout is sized
// to the recognizer's worst case rather than a typical API round trip, and
// idle connections to the single sidecar host are kept warm.
func newInferenceClient(poolSize int) *http.Client {
	if poolSize < 1 {
		poolSize = 1
	}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}
}

type httpResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe satisfies Backend. It resamples to NativeRate if needed,
// uploads WAV-encoded audio and an optional initial_prompt field, and maps
// a 503 response (model still loading) to ErrNotLoaded.
func (b *HTTPBackend) Transcribe(ctx context.Context, samples []float32, rate int, initialPrompt string) (Result, error) {
	start := time.Now()

	if rate != NativeRate {
		samples = Resample(samples, rate)
	}

	body, contentType, err := buildMultipartAudio(samples, initialPrompt)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+"/inference", body)
	if err != nil {
		return Result{}, fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := b.client.Do(req)
	if err != nil {
		metrics.BackendErrors.WithLabelValues("transport").Inc()
		return Result{}, fmt.Errorf("backend: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		metrics.BackendErrors.WithLabelValues("not_loaded").Inc()
		return Result{}, ErrNotLoaded
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.BackendErrors.WithLabelValues("status").Inc()
		return Result{}, fmt.Errorf("backend: status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed httpResponse
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("backend: decode response: %w", err)
	}

	processingMs := float64(time.Since(start).Milliseconds())
	metrics.BackendLatency.Observe(time.Since(start).Seconds())

	segments := make([]Segment, len(parsed.Segments))
	for i, s := range parsed.Segments {
		segments[i] = Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	if len(segments) == 0 && parsed.Text != "" {
		// Some whisper-server configurations omit per-segment timestamps;
		// fall back to a single segment spanning the whole input.
		segments = []Segment{{Start: 0, End: float64(len(samples)) / float64(NativeRate), Text: parsed.Text}}
	}

	return Result{
		Text:         parsed.Text,
		Segments:     segments,
		Language:     parsed.Language,
		ProcessingMs: processingMs,
	}, nil
}

func buildMultipartAudio(samples []float32, initialPrompt string) (*bytes.Buffer, string, error) {
	wavData := audio.SamplesToWAV(samples, NativeRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("backend: create form file: %w", err)
	}
	if _, err = part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("backend: write wav data: %w", err)
	}

	if initialPrompt != "" {
		if err = writer.WriteField("initial_prompt", initialPrompt); err != nil {
			return nil, "", fmt.Errorf("backend: write prompt field: %w", err)
		}
	}

	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
