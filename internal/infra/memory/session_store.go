package memory

import (
	"context"
	"sync"
	"time"

	"quizbee-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository. Its
// mutex is held across the check, the attempt insert and the flip, which makes
// CompleteWithAttempt atomic within the process. Suitable for tests and
// single-instance deployments only.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	attempts *AttemptStore
}

// NewSessionStore writes completed attempts into attempts.
func NewSessionStore(attempts *AttemptStore) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		attempts: attempts,
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Questions = append([]domain.Question(nil), session.Questions...)
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return clone(session), nil
}

func (s *SessionStore) CompleteWithAttempt(_ context.Context, attempt domain.Attempt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[attempt.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := session.CheckSubmittable(now); err != nil {
		return err
	}
	if err := s.attempts.insert(attempt); err != nil {
		return err
	}
	completedAt := now
	session.Completed = true
	session.CompletedAt = &completedAt
	s.sessions[attempt.SessionID] = session
	return nil
}

func (s *SessionStore) CleanupExpired(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if !session.Completed && session.ExpiresAt.Before(olderThan) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func clone(session domain.Session) domain.Session {
	session.Questions = append([]domain.Question(nil), session.Questions...)
	if session.CompletedAt != nil {
		at := *session.CompletedAt
		session.CompletedAt = &at
	}
	return session
}
