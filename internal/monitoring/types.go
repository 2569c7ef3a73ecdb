// Package monitoring - types.go defines the interaction log records.
package monitoring

import "time"

// InteractionRecord is one completed generation, as persisted to the
// interaction log and pushed to the live event feed.
type InteractionRecord struct {
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	Speaker    string    `json:"speaker"`
	Intent     string    `json:"intent"`
	Source     string    `json:"source"`   // llm|llm_regen|cache|fallback|cooldown
	Terminal   string    `json:"terminal"` // pipeline terminal state (includes safety_abort, joined)
	Provider   string    `json:"provider,omitempty"`
	Score      int       `json:"score"`
	GuardFlags []string  `json:"guard_flags,omitempty"`
	Reasons    []string  `json:"reasons,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Text       string    `json:"text"`
}

// CorrectionRecord pairs a low-scoring model reply with a synthesized
// fallback line for later offline review.
type CorrectionRecord struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Speaker      string    `json:"speaker"`
	Intent       string    `json:"intent"`
	ModelText    string    `json:"model_text"`
	FallbackText string    `json:"fallback_text"`
	Score        int       `json:"score"`
	Reasons      []string  `json:"reasons,omitempty"`
}

// TrackerConfig controls the interaction log sinks.
type TrackerConfig struct {
	Enabled     bool
	LogPath     string // JSONL mirror; empty disables
	DBPath      string // SQLite store; empty disables
	LogToStdout bool
}
