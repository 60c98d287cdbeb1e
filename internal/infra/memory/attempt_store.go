package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"quizbee-service/internal/domain"
)

// AttemptStore keeps attempts in memory, at most one per session.
type AttemptStore struct {
	mu        sync.RWMutex
	attempts  map[string]domain.Attempt
	bySession map[string]string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[string]domain.Attempt),
		bySession: make(map[string]string),
	}
}

// insert is called by SessionStore while it holds its own lock.
func (s *AttemptStore) insert(attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bySession[attempt.SessionID]; exists {
		return domain.ErrSessionAlreadyCompleted
	}
	attempt.Answers = append([]domain.AnswerRecord(nil), attempt.Answers...)
	s.attempts[attempt.ID] = attempt
	s.bySession[attempt.SessionID] = attempt.ID
	return nil
}

func (s *AttemptStore) Get(_ context.Context, id string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	attempt.Answers = append([]domain.AnswerRecord(nil), attempt.Answers...)
	return attempt, nil
}

func (s *AttemptStore) GetBySession(ctx context.Context, sessionID string) (domain.Attempt, error) {
	s.mu.RLock()
	id, ok := s.bySession[sessionID]
	s.mu.RUnlock()
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return s.Get(ctx, id)
}

func (s *AttemptStore) Stats(_ context.Context) ([]domain.ModeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byMode := make(map[domain.Mode]*domain.ModeStats)
	sums := make(map[domain.Mode]float64)
	times := make(map[domain.Mode]int)
	for _, a := range s.attempts {
		st := byMode[a.Mode]
		if st == nil {
			st = &domain.ModeStats{Mode: a.Mode}
			byMode[a.Mode] = st
		}
		st.Attempts++
		if a.Passed {
			st.Passed++
		}
		sums[a.Mode] += a.Score.Percentage
		times[a.Mode] += a.TimeTakenSeconds
	}
	out := make([]domain.ModeStats, 0, len(byMode))
	for mode, st := range byMode {
		st.AverageScore = math.Round(sums[mode]/float64(st.Attempts)*10) / 10
		st.AverageTimeSeconds = math.Round(float64(times[mode])/float64(st.Attempts)*10) / 10
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mode < out[j].Mode })
	return out, nil
}
