package history

import "time"

// SessionRecord is one recognition connection's lifetime.
type SessionRecord struct {
	ID        string     `json:"id"`
	Strategy  string     `json:"strategy"`
	Mode      string     `json:"mode"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	RunCount  int        `json:"run_count,omitempty"`
}

// RunRecord is one transcription turn within a session: a final or batch
// request from arrival to reply.
type RunRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Status     string    `json:"status"`
	SpanCount  int       `json:"span_count,omitempty"`
}

// SpanRecord is a timed sub-step of a run, such as the recognizer call.
type SpanRecord struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Detail     string    `json:"detail,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}
