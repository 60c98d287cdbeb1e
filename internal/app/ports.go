package app

import (
	"context"
	"time"

	"quizbee-service/internal/catalog"
	"quizbee-service/internal/domain"
)

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, Postgres).
// CompleteWithAttempt is the only transition out of the active state and must be
// atomic against concurrent callers for the same session.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	// CompleteWithAttempt marks attempt.SessionID completed at now and stores the
	// attempt in the same step. When the session is not active at now it fails with
	// ErrSessionNotFound, ErrSessionExpired or ErrSessionAlreadyCompleted and
	// writes nothing; a storage failure also leaves the session active.
	CompleteWithAttempt(ctx context.Context, attempt domain.Attempt, now time.Time) error
	// CleanupExpired deletes never-completed sessions that expired before olderThan.
	CleanupExpired(ctx context.Context, olderThan time.Time) (int, error)
}

// AttemptRepository reads attempts written by SessionRepository.CompleteWithAttempt.
type AttemptRepository interface {
	Get(ctx context.Context, id string) (domain.Attempt, error)
	GetBySession(ctx context.Context, sessionID string) (domain.Attempt, error)
	Stats(ctx context.Context) ([]domain.ModeStats, error)
}

// QuestionCatalog is the read-only content index.
type QuestionCatalog interface {
	ListTopics(ctx context.Context) ([]domain.Topic, error)
	ListSubtopics(ctx context.Context, topicID string) ([]domain.Subtopic, error)
	SelectElimination(ctx context.Context, count int, scope catalog.Scope) ([]domain.Question, error)
	SelectFinals(ctx context.Context, scope catalog.Scope) ([]domain.Question, error)
	SelectFinalsStage(ctx context.Context, scope catalog.Scope, tier domain.Difficulty, count int) ([]domain.Question, error)
}

// Publisher delivers lifecycle events to observers.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event)
}
