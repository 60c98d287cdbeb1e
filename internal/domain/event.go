package domain

import "time"

// EventKind enumerates lifecycle events emitted by the quiz service.
type EventKind string

const (
	EventSessionStarted    EventKind = "session_started"
	EventQuizCompleted     EventKind = "quiz_completed"
	EventHighScoreAchieved EventKind = "high_score_achieved"
)

// Event is transient; observers decide whether to persist it.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}
