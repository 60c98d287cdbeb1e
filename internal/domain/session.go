package domain

import "time"

// SessionState is derived from the completed flag and the expiry timestamp.
type SessionState string

const (
	StateActive    SessionState = "active"
	StateCompleted SessionState = "completed"
	StateExpired   SessionState = "expired"
)

// Session is a quiz issued to a client. Questions is a frozen snapshot taken at creation.
type Session struct {
	ID          string     `json:"id"`
	Mode        Mode       `json:"mode"`
	TopicID     string     `json:"topicId,omitempty"`
	SubtopicID  string     `json:"subtopicId,omitempty"`
	Difficulty  Difficulty `json:"difficulty,omitempty"`
	Label       string     `json:"label,omitempty"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// State reports the lifecycle state at now. Expiry wins over completion so a
// late duplicate is always reported as expired.
func (s Session) State(now time.Time) SessionState {
	if !now.Before(s.ExpiresAt) {
		return StateExpired
	}
	if s.Completed {
		return StateCompleted
	}
	return StateActive
}

// CheckSubmittable maps a non-active state to its error.
func (s Session) CheckSubmittable(now time.Time) error {
	switch s.State(now) {
	case StateExpired:
		return ErrSessionExpired
	case StateCompleted:
		return ErrSessionAlreadyCompleted
	}
	return nil
}

// PublicQuestions returns the client payload for the snapshot.
func (s Session) PublicQuestions() []PublicQuestion {
	out := make([]PublicQuestion, 0, len(s.Questions))
	for _, q := range s.Questions {
		out = append(out, q.Public())
	}
	return out
}

// SessionView is the payload handed to clients when a quiz starts.
type SessionView struct {
	ID        string           `json:"id"`
	Mode      Mode             `json:"mode"`
	State     SessionState     `json:"state"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Questions []PublicQuestion `json:"questions"`
}

// SessionStatus answers validate-session.
type SessionStatus struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	ExpiresAt time.Time    `json:"expiresAt"`
}
