package evaluation

import "time"

type EventType string

const (
	EventQuery        EventType = "query"
	EventQueryFailed  EventType = "query_failed"
	EventRunCompleted EventType = "run_completed"
	EventSearch       EventType = "search"
)

// QueryEvent reports one ranked topic of a run, or one ad-hoc search where
// RunID is empty and RequestID identifies the request.
type QueryEvent struct {
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	Model      string    `json:"model"`
	Terms      []string  `json:"terms"`
	Returned   int       `json:"returned"`
	Candidates int       `json:"candidates"`
	CacheHit   bool      `json:"cache_hit"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type RunCompletedEvent struct {
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	Model      string    `json:"model"`
	Topics     int       `json:"topics"`
	Failures   int       `json:"failures"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
