package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/uptrace/bun"

	"quizbee-service/internal/catalog"
)

// ImportFS copies a content directory (same layout FSLoader reads) into the
// topics and question_sets tables. Every document is validated first and rows
// are upserted in one transaction, so a bad file leaves the tables untouched.
func ImportFS(ctx context.Context, db *bun.DB, fsys fs.FS) (topics, sets int, err error) {
	topicRows, setRows, err := collectFS(fsys)
	if err != nil {
		return 0, 0, err
	}

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(topicRows) > 0 {
			if _, err := tx.NewInsert().Model(&topicRows).
				On("CONFLICT (id) DO UPDATE").
				Set("data = EXCLUDED.data").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert topics: %w", err)
			}
		}
		if len(setRows) > 0 {
			if _, err := tx.NewInsert().Model(&setRows).
				On("CONFLICT (id) DO UPDATE").
				Set("topic_id = EXCLUDED.topic_id").
				Set("data = EXCLUDED.data").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert question sets: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return len(topicRows), len(setRows), nil
}

// collectFS reads and validates every document under fsys.
func collectFS(fsys fs.FS) ([]topicModel, []questionSetModel, error) {
	var (
		topicRows []topicModel
		setRows   []questionSetModel
	)
	indexes, err := fs.Glob(fsys, "*/index.json")
	if err != nil {
		return nil, nil, err
	}
	for _, indexPath := range indexes {
		raw, err := fs.ReadFile(fsys, indexPath)
		if err != nil {
			return nil, nil, err
		}
		topic, err := catalog.ParseTopicIndex(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", indexPath, err)
		}
		topicRows = append(topicRows, topicModel{ID: topic.ID, Data: json.RawMessage(raw)})

		dir := path.Dir(indexPath)
		for _, st := range topic.Subtopics {
			files, err := fs.Glob(fsys, path.Join(dir, st.ID, "*.json"))
			if err != nil {
				return nil, nil, err
			}
			for _, file := range files {
				raw, err := fs.ReadFile(fsys, file)
				if err != nil {
					return nil, nil, err
				}
				if _, err := catalog.ParseSubtopicFile(topic.ID, st.ID, raw); err != nil {
					return nil, nil, fmt.Errorf("%s: %w", file, err)
				}
				setRows = append(setRows, questionSetModel{ID: file, TopicID: topic.ID, Data: json.RawMessage(raw)})
			}
		}
	}
	return topicRows, setRows, nil
}
