package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"path"

	"quizbee-service/internal/domain"
)

// Loader reads the whole topic/subtopic/question hierarchy from a content store.
type Loader interface {
	Load(ctx context.Context) (Content, error)
}

// FSLoader reads content laid out as
//
//	<topic>/index.json
//	<topic>/<subtopic>/*.json
type FSLoader struct {
	fsys fs.FS
}

func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

func (l *FSLoader) Load(ctx context.Context) (Content, error) {
	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return Content{}, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	}

	var content Content
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Content{}, err
		}
		if !entry.IsDir() {
			continue
		}
		indexPath := path.Join(entry.Name(), "index.json")
		data, err := fs.ReadFile(l.fsys, indexPath)
		if err != nil {
			// directories without an index are not topics
			continue
		}
		topic, err := ParseTopicIndex(data)
		if err != nil {
			return Content{}, fmt.Errorf("%w: %s: %w", domain.ErrCatalogUnavailable, indexPath, err)
		}
		content.Topics = append(content.Topics, topic)

		for _, st := range topic.Subtopics {
			files, err := fs.Glob(l.fsys, path.Join(entry.Name(), st.ID, "*.json"))
			if err != nil {
				return Content{}, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
			}
			for _, file := range files {
				raw, err := fs.ReadFile(l.fsys, file)
				if err != nil {
					return Content{}, fmt.Errorf("%w: %s: %w", domain.ErrCatalogUnavailable, file, err)
				}
				questions, err := ParseSubtopicFile(topic.ID, st.ID, raw)
				if err != nil {
					return Content{}, fmt.Errorf("%w: %s: %w", domain.ErrCatalogUnavailable, file, err)
				}
				content.Questions = append(content.Questions, questions...)
			}
		}
	}
	return content, nil
}

// StaticLoader serves fixed content (useful for tests/demos).
type StaticLoader struct {
	content Content
}

func NewStaticLoader(content Content) *StaticLoader {
	return &StaticLoader{content: content}
}

func (l *StaticLoader) Load(_ context.Context) (Content, error) {
	return l.content, nil
}
