package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizbee-service/internal/domain"
)

// SessionStore persists sessions in quiz_sessions. Completion is a conditional
// UPDATE whose affected-row count decides the single winner; the attempt insert
// runs in the same transaction.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	_, err := s.db.NewInsert().Model(newSessionModel(session)).Exec(ctx)
	return domain.Persistence("create session", err)
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	m := new(sessionModel)
	err := s.db.NewSelect().Model(m).Where("s.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, domain.Persistence("get session", err)
	}
	return m.toDomain(), nil
}

func (s *SessionStore) CompleteWithAttempt(ctx context.Context, attempt domain.Attempt, now time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*sessionModel)(nil)).
			Set("completed = TRUE").
			Set("completed_at = ?", now).
			Where("id = ?", attempt.SessionID).
			Where("completed = FALSE").
			Where("expires_at > ?", now).
			Exec(ctx)
		if err != nil {
			return domain.Persistence("complete session", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return domain.Persistence("complete session", err)
		}
		if n == 0 {
			return s.rejection(ctx, tx, attempt.SessionID, now)
		}

		_, err = tx.NewInsert().Model(newAttemptModel(attempt)).Exec(ctx)
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			return domain.ErrSessionAlreadyCompleted
		}
		return domain.Persistence("record attempt", err)
	})
}

// rejection reports why the conditional update matched no row.
func (s *SessionStore) rejection(ctx context.Context, tx bun.Tx, id string, now time.Time) error {
	m := new(sessionModel)
	err := tx.NewSelect().Model(m).Where("s.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Persistence("get session", err)
	}
	if err := m.toDomain().CheckSubmittable(now); err != nil {
		return err
	}
	return domain.ErrSessionAlreadyCompleted
}

func (s *SessionStore) CleanupExpired(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*sessionModel)(nil)).
		Where("completed = FALSE").
		Where("expires_at < ?", olderThan).
		Exec(ctx)
	if err != nil {
		return 0, domain.Persistence("cleanup sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Persistence("cleanup sessions", err)
	}
	return int(n), nil
}
