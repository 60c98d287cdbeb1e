package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Open returns a bun handle over the pgdriver connector.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// EnsureSchema creates the tables and indexes the stores rely on. It is
// idempotent and runs at startup; there is no down path.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	models := []interface{}{
		(*sessionModel)(nil),
		(*attemptModel)(nil),
		(*topicModel)(nil),
		(*questionSetModel)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Tables created before time tracking lack the column.
	if _, err := db.NewAddColumn().
		Model((*attemptModel)(nil)).
		ColumnExpr("IF NOT EXISTS time_taken_seconds integer NOT NULL DEFAULT 0").
		Exec(ctx); err != nil {
		return fmt.Errorf("add time_taken_seconds: %w", err)
	}

	indexes := []struct {
		model  interface{}
		name   string
		column string
		unique bool
	}{
		{(*attemptModel)(nil), "quiz_attempts_session_id_key", "session_id", true},
		{(*attemptModel)(nil), "quiz_attempts_mode_idx", "mode", false},
		{(*sessionModel)(nil), "quiz_sessions_expires_at_idx", "expires_at", false},
		{(*questionSetModel)(nil), "question_sets_topic_id_idx", "topic_id", false},
	}
	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.column).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
