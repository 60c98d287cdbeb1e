package postgres

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"quizbee-service/internal/domain"
)

type sessionModel struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:s"`

	ID          string            `bun:"id,pk"`
	Mode        string            `bun:"mode,notnull"`
	TopicID     string            `bun:"topic_id"`
	SubtopicID  string            `bun:"subtopic_id"`
	Difficulty  string            `bun:"difficulty"`
	Label       string            `bun:"label"`
	Questions   []domain.Question `bun:"questions_snapshot,type:jsonb,notnull"`
	CreatedAt   time.Time         `bun:"created_at,notnull"`
	ExpiresAt   time.Time         `bun:"expires_at,notnull"`
	Completed   bool              `bun:"completed,notnull,default:false"`
	CompletedAt bun.NullTime      `bun:"completed_at"`
}

func newSessionModel(s domain.Session) *sessionModel {
	m := &sessionModel{
		ID:         s.ID,
		Mode:       string(s.Mode),
		TopicID:    s.TopicID,
		SubtopicID: s.SubtopicID,
		Difficulty: string(s.Difficulty),
		Label:      s.Label,
		Questions:  s.Questions,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
		Completed:  s.Completed,
	}
	if s.CompletedAt != nil {
		m.CompletedAt = bun.NullTime{Time: *s.CompletedAt}
	}
	return m
}

func (m *sessionModel) toDomain() domain.Session {
	s := domain.Session{
		ID:         m.ID,
		Mode:       domain.Mode(m.Mode),
		TopicID:    m.TopicID,
		SubtopicID: m.SubtopicID,
		Difficulty: domain.Difficulty(m.Difficulty),
		Label:      m.Label,
		Questions:  m.Questions,
		CreatedAt:  m.CreatedAt.UTC(),
		ExpiresAt:  m.ExpiresAt.UTC(),
		Completed:  m.Completed,
	}
	if !m.CompletedAt.IsZero() {
		at := m.CompletedAt.Time.UTC()
		s.CompletedAt = &at
	}
	return s
}

type attemptModel struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:a"`

	ID              string                `bun:"id,pk"`
	SessionID       string                `bun:"session_id,notnull"`
	Mode            string                `bun:"mode,notnull"`
	TopicID         string                `bun:"topic_id"`
	SubtopicID      string                `bun:"subtopic_id"`
	Difficulty      string                `bun:"difficulty"`
	Answers         []domain.AnswerRecord `bun:"answers,type:jsonb,notnull"`
	CorrectCount    int                   `bun:"correct_count,notnull"`
	TotalQuestions  int                   `bun:"total_questions,notnull"`
	ScorePercentage float64               `bun:"score_percentage,notnull"`
	Passed          bool                  `bun:"passed,notnull"`
	Label           string                `bun:"label"`
	TimeTaken       int                   `bun:"time_taken_seconds,notnull,default:0"`
	CreatedAt       time.Time             `bun:"created_at,notnull"`
}

func newAttemptModel(a domain.Attempt) *attemptModel {
	return &attemptModel{
		ID:              a.ID,
		SessionID:       a.SessionID,
		Mode:            string(a.Mode),
		TopicID:         a.TopicID,
		SubtopicID:      a.SubtopicID,
		Difficulty:      string(a.Difficulty),
		Answers:         a.Answers,
		CorrectCount:    a.Score.Correct,
		TotalQuestions:  a.Score.Total,
		ScorePercentage: a.Score.Percentage,
		Passed:          a.Passed,
		Label:           a.Label,
		TimeTaken:       a.TimeTakenSeconds,
		CreatedAt:       a.CreatedAt,
	}
}

func (m *attemptModel) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Mode:       domain.Mode(m.Mode),
		TopicID:    m.TopicID,
		SubtopicID: m.SubtopicID,
		Difficulty: domain.Difficulty(m.Difficulty),
		Answers:    m.Answers,
		Score: domain.Score{
			Correct:    m.CorrectCount,
			Total:      m.TotalQuestions,
			Percentage: m.ScorePercentage,
		},
		Passed:           m.Passed,
		Label:            m.Label,
		TimeTakenSeconds: m.TimeTaken,
		CreatedAt:        m.CreatedAt.UTC(),
	}
}

// topicModel and questionSetModel hold catalog documents verbatim; the
// catalog package parses and validates them on load.
type topicModel struct {
	bun.BaseModel `bun:"table:topics"`

	ID   string          `bun:"id,pk"`
	Data json.RawMessage `bun:"data,type:jsonb,notnull"`
}

type questionSetModel struct {
	bun.BaseModel `bun:"table:question_sets"`

	ID      string          `bun:"id,pk"`
	TopicID string          `bun:"topic_id,notnull"`
	Data    json.RawMessage `bun:"data,type:jsonb,notnull"`
}
