package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizbee-service/internal/catalog"
	"quizbee-service/internal/domain"
)

// CatalogLoader reads topic index and question set documents stored as JSONB.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) Load(ctx context.Context) (catalog.Content, error) {
	var content catalog.Content

	rows, err := l.pool.Query(ctx, `SELECT data FROM topics ORDER BY id`)
	if err != nil {
		return catalog.Content{}, fmt.Errorf("%w: load topics: %w", domain.ErrCatalogUnavailable, err)
	}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return catalog.Content{}, fmt.Errorf("%w: scan topic: %w", domain.ErrCatalogUnavailable, err)
		}
		topic, err := catalog.ParseTopicIndex(raw)
		if err != nil {
			rows.Close()
			return catalog.Content{}, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
		}
		content.Topics = append(content.Topics, topic)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return catalog.Content{}, fmt.Errorf("%w: load topics: %w", domain.ErrCatalogUnavailable, err)
	}

	rows, err = l.pool.Query(ctx, `SELECT id, topic_id, data FROM question_sets ORDER BY id`)
	if err != nil {
		return catalog.Content{}, fmt.Errorf("%w: load question sets: %w", domain.ErrCatalogUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, topicID string
			raw         []byte
		)
		if err := rows.Scan(&id, &topicID, &raw); err != nil {
			return catalog.Content{}, fmt.Errorf("%w: scan question set: %w", domain.ErrCatalogUnavailable, err)
		}
		questions, err := catalog.ParseQuestionFile(topicID, raw)
		if err != nil {
			return catalog.Content{}, fmt.Errorf("%w: question set %s: %w", domain.ErrCatalogUnavailable, id, err)
		}
		content.Questions = append(content.Questions, questions...)
	}
	if err := rows.Err(); err != nil {
		return catalog.Content{}, fmt.Errorf("%w: load question sets: %w", domain.ErrCatalogUnavailable, err)
	}
	return content, nil
}
