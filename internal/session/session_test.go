package session

import (
	"context"
	"testing"
	"time"

	"github.com/wavesignal/sttstream/internal/backend"
	"github.com/wavesignal/sttstream/internal/strategy"
)

type fakeBackend struct {
	respond func(samples []float32, rate int, prompt string) (backend.Result, error)
	calls   int
}

func (f *fakeBackend) Transcribe(ctx context.Context, samples []float32, rate int, prompt string) (backend.Result, error) {
	f.calls++
	return f.respond(samples, rate, prompt)
}

func newTestSession(strat strategy.Strategy, be Transcriber) *Session {
	return New(strat, 16000, be, DefaultConfig())
}

func TestBatchHappyPath(t *testing.T) {
	be := &fakeBackend{respond: func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{
			Text:         "hello",
			Segments:     []backend.Segment{{Start: 0, End: 1, Text: "hello"}},
			Language:     "en",
			ProcessingMs: 42,
		}, nil
	}}
	s := newTestSession(strategy.Prompt, be)

	samples := make([]float32, 16000)
	res, err := s.Transcribe(context.Background(), samples)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !res.Accepted || res.Text != "hello" || res.Language != "en" || res.ProcessingMs != 42 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if s.PreviousTranscript != "hello" {
		t.Errorf("PreviousTranscript = %q, want %q", s.PreviousTranscript, "hello")
	}
}

func TestHallucinationRejectionKeepsPreviousTranscript(t *testing.T) {
	be := &fakeBackend{respond: func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{Text: "lililili lili lili lili lili"}, nil
	}}
	s := newTestSession(strategy.Prompt, be)
	s.PreviousTranscript = "earlier transcript"

	res, err := s.Transcribe(context.Background(), make([]float32, 16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Accepted {
		t.Fatalf("expected rejection, got accepted result: %+v", res)
	}
	if res.RawText != "lililili lili lili lili lili" {
		t.Errorf("RawText = %q", res.RawText)
	}
	if s.PreviousTranscript != "earlier transcript" {
		t.Errorf("PreviousTranscript changed after rejection: %q", s.PreviousTranscript)
	}
}

func TestContextTrim(t *testing.T) {
	be := &fakeBackend{respond: func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{
			Segments: []backend.Segment{
				{Start: 0.0, End: 0.5, Text: "old"},
				{Start: 0.5, End: 1.0, Text: "new"},
				{Start: 1.0, End: 1.5, Text: "words"},
			},
		}, nil
	}}
	s := newTestSession(strategy.Context, be)
	s.ContextAudio = make([]float32, 16000/2) // 0.5s of prior context

	res, err := s.Transcribe(context.Background(), make([]float32, 16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected acceptance, got %+v", res)
	}
	if res.Text != "new words" {
		t.Errorf("Text = %q, want %q", res.Text, "new words")
	}
	want := []backend.Segment{{Start: 0.0, End: 0.5, Text: "new"}, {Start: 0.5, End: 1.0, Text: "words"}}
	if len(res.Segments) != len(want) {
		t.Fatalf("got %d segments, want %d", len(res.Segments), len(want))
	}
	for i := range want {
		if res.Segments[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, res.Segments[i], want[i])
		}
	}
}

func TestAudioBufferEmptyAfterFrameThenVADEnd(t *testing.T) {
	be := &fakeBackend{respond: func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{Text: "ok text here"}, nil
	}}
	s := newTestSession(strategy.Prompt, be)

	s.OnAudioFrame(make([]float32, 480))
	s.OnAudioFrame(make([]float32, 480))

	_, ok, err := s.OnVADEnd(context.Background())
	if err != nil {
		t.Fatalf("OnVADEnd: %v", err)
	}
	if !ok {
		t.Fatal("expected a final to be scheduled")
	}
	if len(s.AudioBuffer) != 0 {
		t.Errorf("AudioBuffer not empty after vad_end: len=%d", len(s.AudioBuffer))
	}
}

func TestDoubleVADEndSecondIsEmptyNoOp(t *testing.T) {
	be := &fakeBackend{respond: func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{Text: "ok text here"}, nil
	}}
	s := newTestSession(strategy.Prompt, be)
	s.OnAudioFrame(make([]float32, 480))

	_, ok, err := s.OnVADEnd(context.Background())
	if err != nil || !ok {
		t.Fatalf("first vad_end: ok=%v err=%v", ok, err)
	}

	_, ok2, err := s.OnVADEnd(context.Background())
	if err != nil {
		t.Fatalf("second vad_end: %v", err)
	}
	if ok2 {
		t.Error("second vad_end should be a no-op (empty buffer)")
	}
	if be.calls != 1 {
		t.Errorf("backend called %d times, want 1", be.calls)
	}
}

func TestPartialDoesNotMutateSessionState(t *testing.T) {
	be := &fakeBackend{respond: func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{Text: "the cat the cat the cat the cat the cat"}, nil
	}}
	s := newTestSession(strategy.Prompt, be)
	s.PreviousTranscript = "before"
	s.OnAudioFrame(make([]float32, 16000))

	bufLenBefore := len(s.AudioBuffer)
	res, err := s.Partial(context.Background())
	if err != nil {
		t.Fatalf("Partial: %v", err)
	}
	if res.Text != "the cat" {
		t.Errorf("deduped partial text = %q, want %q", res.Text, "the cat")
	}
	if s.PreviousTranscript != "before" {
		t.Errorf("Partial mutated PreviousTranscript: %q", s.PreviousTranscript)
	}
	if len(s.ContextAudio) != 0 {
		t.Errorf("Partial mutated ContextAudio")
	}
	if len(s.AudioBuffer) != bufLenBefore {
		t.Errorf("Partial mutated AudioBuffer")
	}
}

func TestPartialDuePacing(t *testing.T) {
	be := &fakeBackend{respond: func(samples []float32, rate int, prompt string) (backend.Result, error) {
		return backend.Result{Text: "text"}, nil
	}}
	s := newTestSession(strategy.Prompt, be)
	clock := time.Now()
	s.now = func() time.Time { return clock }

	if due := s.OnAudioFrame(make([]float32, 480)); due {
		t.Error("first frame should not immediately schedule a partial")
	}
	clock = clock.Add(100 * time.Millisecond)
	if due := s.OnAudioFrame(make([]float32, 480)); due {
		t.Error("partial should not be due before partial_interval_ms elapses")
	}
	clock = clock.Add(450 * time.Millisecond)
	if due := s.OnAudioFrame(make([]float32, 480)); !due {
		t.Error("partial should be due once partial_interval_ms has elapsed")
	}
}
