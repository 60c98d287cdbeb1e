package app

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"quizbee-service/internal/domain"
)

// MaxLabelLength caps the free-text label attached to an attempt.
const MaxLabelLength = 100

// AttemptRecorder turns a score result into an immutable attempt and stores it
// together with the completion of its session.
type AttemptRecorder struct {
	sessions SessionRepository
	newID    func() string
}

func NewAttemptRecorder(sessions SessionRepository, newID func() string) *AttemptRecorder {
	return &AttemptRecorder{sessions: sessions, newID: newID}
}

// Record completes session at now and persists its attempt. The returned
// attempt is only valid when err is nil.
func (r *AttemptRecorder) Record(ctx context.Context, session domain.Session, result domain.ScoreResult, label string, now time.Time) (domain.Attempt, error) {
	attempt := domain.Attempt{
		ID:               r.newID(),
		SessionID:        session.ID,
		Mode:             session.Mode,
		TopicID:          session.TopicID,
		SubtopicID:       session.SubtopicID,
		Difficulty:       session.Difficulty,
		Answers:          append([]domain.AnswerRecord(nil), result.Answers...),
		Score:            result.Score,
		Passed:           result.Passed,
		Label:            SanitizeLabel(label),
		TimeTakenSeconds: timeTaken(session.CreatedAt, now),
		CreatedAt:        now,
	}
	if err := r.sessions.CompleteWithAttempt(ctx, attempt, now); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

func timeTaken(started, submitted time.Time) int {
	if submitted.Before(started) {
		return 0
	}
	return int(submitted.Sub(started) / time.Second)
}

// SanitizeLabel trims, drops control characters and caps the label length.
func SanitizeLabel(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	cleaned = strings.TrimSpace(cleaned)
	if utf8.RuneCountInString(cleaned) > MaxLabelLength {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:MaxLabelLength]))
	}
	return cleaned
}
