package history

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// maxFieldLen caps the length of transcript/detail strings stored per
	// run or span so a long dictation doesn't bloat the database.
	maxFieldLen = 500

	// recorderBuffer is how many pending writes can queue before the
	// recorder starts dropping the oldest instead of blocking a connection.
	recorderBuffer = 64
)

type recordMsg struct {
	kind string // "run_create", "run_update", "span"
	// run fields
	runID      string
	sessionID  string
	durationMs float64
	transcript string
	status     string
	// span fields
	span SpanRecord
}

// Recorder writes history records asynchronously via a buffered channel.
// All methods are nil-safe (no-op on nil receiver), so request-handling code
// records unconditionally and an unconfigured store costs nothing.
type Recorder struct {
	store     *Store
	sessionID string
	ch        chan recordMsg
	done      chan struct{}
}

// NewRecorder creates a recorder bound to one session and starts a
// background goroutine that drains pending writes to the store sequentially.
// Callers must Close() when the connection ends to flush and stop it.
func NewRecorder(store *Store, sessionID string) *Recorder {
	r := &Recorder{
		store:     store,
		sessionID: sessionID,
		ch:        make(chan recordMsg, recorderBuffer),
		done:      make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for msg := range r.ch {
		if err := r.dispatch(msg); err != nil {
			slog.Warn("history write failed", "kind", msg.kind, "session_id", r.sessionID, "error", err)
		}
	}
}

func (r *Recorder) dispatch(m recordMsg) error {
	switch m.kind {
	case "run_create":
		return r.store.CreateRun(m.runID, m.sessionID)
	case "run_update":
		return r.store.UpdateRun(m.runID, m.durationMs, m.transcript, m.status)
	case "span":
		return r.store.CreateSpan(m.span)
	}
	return nil
}

// enqueue offers a write to the drain goroutine. When the buffer is full the
// oldest pending write is discarded; history must never stall a connection.
func (r *Recorder) enqueue(m recordMsg) {
	for {
		select {
		case r.ch <- m:
			return
		default:
		}
		select {
		case dropped := <-r.ch:
			slog.Debug("history write dropped", "kind", dropped.kind, "session_id", r.sessionID)
		default:
		}
	}
}

// StartRun begins a new transcription turn and returns its ID.
func (r *Recorder) StartRun() string {
	if r == nil {
		return ""
	}
	id := uuid.NewString()
	r.enqueue(recordMsg{kind: "run_create", runID: id, sessionID: r.sessionID})
	return id
}

// EndRun finalizes a turn with its accepted (or rejected) transcript and
// status ("accepted", "noise", "error", or "empty" for a vad_end with
// nothing buffered).
func (r *Recorder) EndRun(runID string, durationMs float64, transcript, status string) {
	if r == nil {
		return
	}
	r.enqueue(recordMsg{
		kind:       "run_update",
		runID:      runID,
		durationMs: durationMs,
		transcript: truncate(transcript, maxFieldLen),
		status:     status,
	})
}

// RecordSpan records a completed sub-step of a turn.
func (r *Recorder) RecordSpan(runID, name string, startedAt time.Time, durationMs float64, detail, status, errMsg string) {
	if r == nil {
		return
	}
	r.enqueue(recordMsg{
		kind: "span",
		span: SpanRecord{
			ID:         uuid.NewString(),
			RunID:      runID,
			Name:       name,
			StartedAt:  startedAt,
			DurationMs: durationMs,
			Detail:     truncate(detail, maxFieldLen),
			Status:     status,
			Error:      errMsg,
		},
	})
}

// Close drains pending writes and shuts down the background goroutine.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	close(r.ch)
	<-r.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
