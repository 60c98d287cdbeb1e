package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"github.com/uptrace/bun"

	"quizbee-service/internal/domain"
)

// AttemptStore reads quiz_attempts, written by SessionStore.CompleteWithAttempt.
// The unique index on session_id keeps one attempt per session.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) Get(ctx context.Context, id string) (domain.Attempt, error) {
	return s.getWhere(ctx, "a.id = ?", id)
}

func (s *AttemptStore) GetBySession(ctx context.Context, sessionID string) (domain.Attempt, error) {
	return s.getWhere(ctx, "a.session_id = ?", sessionID)
}

func (s *AttemptStore) getWhere(ctx context.Context, where string, arg string) (domain.Attempt, error) {
	m := new(attemptModel)
	err := s.db.NewSelect().Model(m).Where(where, arg).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, domain.Persistence("get attempt", err)
	}
	return m.toDomain(), nil
}

type statsRow struct {
	Mode     string  `bun:"mode"`
	Attempts int     `bun:"attempts"`
	Passed   int     `bun:"passed"`
	Average  float64 `bun:"average"`
	AvgTime  float64 `bun:"avg_time"`
}

func (s *AttemptStore) Stats(ctx context.Context) ([]domain.ModeStats, error) {
	var rows []statsRow
	err := s.db.NewSelect().
		Model((*attemptModel)(nil)).
		ColumnExpr("a.mode").
		ColumnExpr("count(*) AS attempts").
		ColumnExpr("count(*) FILTER (WHERE a.passed) AS passed").
		ColumnExpr("coalesce(avg(a.score_percentage), 0) AS average").
		ColumnExpr("coalesce(avg(a.time_taken_seconds), 0) AS avg_time").
		Group("a.mode").
		Order("a.mode").
		Scan(ctx, &rows)
	if err != nil {
		return nil, domain.Persistence("read stats", err)
	}
	out := make([]domain.ModeStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ModeStats{
			Mode:               domain.Mode(r.Mode),
			Attempts:           r.Attempts,
			Passed:             r.Passed,
			AverageScore:       math.Round(r.Average*10) / 10,
			AverageTimeSeconds: math.Round(r.AvgTime*10) / 10,
		})
	}
	return out, nil
}
