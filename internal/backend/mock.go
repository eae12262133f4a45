package backend

import (
	"context"
	"sync/atomic"
	"time"
)

// MockBackend is a deterministic in-process adapter used for warmup in
// environments without a reachable HTTP sidecar, and for tests. It never
// inspects the audio; it returns whatever Result its Respond hook produces,
// or a fixed-empty result by default.
type MockBackend struct {
	loaded  atomic.Bool
	Respond func(samples []float32, rate int, initialPrompt string) (Result, error)
}

// NewMockBackend returns a MockBackend already marked loaded.
func NewMockBackend() *MockBackend {
	m := &MockBackend{}
	m.loaded.Store(true)
	return m
}

// MarkNotLoaded flips the backend into the not-loaded state; the next
// Transcribe call returns ErrNotLoaded.
func (m *MockBackend) MarkNotLoaded() { m.loaded.Store(false) }

// MarkLoaded flips the backend back into the loaded state.
func (m *MockBackend) MarkLoaded() { m.loaded.Store(true) }

func (m *MockBackend) Transcribe(ctx context.Context, samples []float32, rate int, initialPrompt string) (Result, error) {
	if !m.loaded.Load() {
		return Result{}, ErrNotLoaded
	}
	start := time.Now()
	if m.Respond != nil {
		res, err := m.Respond(samples, rate, initialPrompt)
		if err != nil {
			return Result{}, err
		}
		if res.ProcessingMs == 0 {
			res.ProcessingMs = float64(time.Since(start).Milliseconds())
		}
		return res, nil
	}
	return Result{ProcessingMs: float64(time.Since(start).Milliseconds())}, nil
}
