package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quizbee-service/internal/domain"
)

// FinalsPerTier is the number of questions per difficulty in a full finals quiz.
const FinalsPerTier = 10

// Scope restricts selection. Empty fields mean "all". A subtopic given together
// with a topic must belong to it.
type Scope struct {
	TopicID          string
	SubtopicID       string
	ExcludeSubtopics []string
}

// Catalog serves selection queries from the current snapshot. Reload replaces
// the whole snapshot, so readers never observe a partially loaded hierarchy.
type Catalog struct {
	loader  Loader
	log     *zap.Logger
	clock   func() time.Time
	sf      singleflight.Group
	current atomic.Pointer[Snapshot]
	version atomic.Int64

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRand fixes the random source, for seeded selection.
func WithRand(rnd *rand.Rand) Option {
	return func(c *Catalog) { c.rnd = rnd }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Catalog) { c.log = log }
}

func New(loader Loader, opts ...Option) *Catalog {
	c := &Catalog{
		loader: loader,
		log:    zap.NewNop(),
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reload loads a fresh snapshot and swaps it in. Concurrent callers share one
// load. On failure the previous snapshot stays in place.
func (c *Catalog) Reload(ctx context.Context) error {
	_, err, _ := c.sf.Do("reload", func() (interface{}, error) {
		content, err := c.loader.Load(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrCatalogUnavailable) {
				err = fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
			}
			return nil, err
		}
		snap, err := newSnapshot(content, c.version.Add(1), c.clock())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
		}
		c.current.Store(snap)
		c.log.Info("catalog loaded",
			zap.Int64("version", snap.Version),
			zap.Int("topics", len(snap.topics)),
			zap.Int("questions", snap.QuestionCount()))
		return snap, nil
	})
	if err != nil {
		c.log.Error("catalog reload failed", zap.Error(err))
	}
	return err
}

// Snapshot returns the current snapshot, loading it on first use.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := c.current.Load(); snap != nil {
		return snap, nil
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c.current.Load(), nil
}

func (c *Catalog) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Topics(), nil
}

func (c *Catalog) ListSubtopics(ctx context.Context, topicID string) ([]domain.Subtopic, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	topic, ok := snap.Topic(topicID)
	if !ok {
		return nil, fmt.Errorf("%w: topic %q", domain.ErrNotFound, topicID)
	}
	return append([]domain.Subtopic(nil), topic.Subtopics...), nil
}

// SelectElimination draws count unique elimination questions uniformly at random from scope.
func (c *Catalog) SelectElimination(ctx context.Context, count int, scope Scope) ([]domain.Question, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: question count must be positive", domain.ErrInvalidRequest)
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if err := checkScope(snap, scope); err != nil {
		return nil, err
	}
	var pool []domain.Question
	switch {
	case scope.SubtopicID != "":
		pool = snap.elimBySub[scope.SubtopicID]
	case scope.TopicID != "":
		pool = snap.elimByTopic[scope.TopicID]
	default:
		pool = snap.elimination
	}
	pool = exclude(pool, scope.ExcludeSubtopics)

	if len(pool) < count {
		return nil, fmt.Errorf("%w: want %d elimination questions, have %d", domain.ErrInsufficientQuestions, count, len(pool))
	}
	return c.sample(pool, count), nil
}

// SelectFinals returns FinalsPerTier questions of each tier, easy first, drawn
// from scope.
func (c *Catalog) SelectFinals(ctx context.Context, scope Scope) ([]domain.Question, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkScope(snap, scope); err != nil {
		return nil, err
	}
	out := make([]domain.Question, 0, FinalsPerTier*len(domain.Difficulties))
	for _, tier := range domain.Difficulties {
		pool := finalsPool(snap, scope, tier)
		if len(pool) < FinalsPerTier {
			return nil, fmt.Errorf("%w: want %d %s finals questions, have %d",
				domain.ErrInsufficientQuestions, FinalsPerTier, tier, len(pool))
		}
		out = append(out, c.sample(pool, FinalsPerTier)...)
	}
	return out, nil
}

// SelectFinalsStage returns count questions of a single tier.
func (c *Catalog) SelectFinalsStage(ctx context.Context, scope Scope, tier domain.Difficulty, count int) ([]domain.Question, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: question count must be positive", domain.ErrInvalidRequest)
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkScope(snap, scope); err != nil {
		return nil, err
	}
	pool := finalsPool(snap, scope, tier)
	if len(pool) < count {
		return nil, fmt.Errorf("%w: want %d %s finals questions, have %d",
			domain.ErrInsufficientQuestions, count, tier, len(pool))
	}
	return c.sample(pool, count), nil
}

func checkScope(snap *Snapshot, scope Scope) error {
	if scope.TopicID != "" {
		if _, ok := snap.Topic(scope.TopicID); !ok {
			return fmt.Errorf("%w: topic %q", domain.ErrNotFound, scope.TopicID)
		}
	}
	if scope.SubtopicID != "" {
		owner, ok := snap.subtopicTopic[scope.SubtopicID]
		if !ok {
			return fmt.Errorf("%w: subtopic %q", domain.ErrNotFound, scope.SubtopicID)
		}
		if scope.TopicID != "" && owner != scope.TopicID {
			return fmt.Errorf("%w: subtopic %q in topic %q", domain.ErrNotFound, scope.SubtopicID, scope.TopicID)
		}
	}
	return nil
}

func finalsPool(snap *Snapshot, scope Scope, tier domain.Difficulty) []domain.Question {
	var pool []domain.Question
	switch {
	case scope.SubtopicID != "":
		pool = snap.finalsBySub[scope.SubtopicID][tier]
	case scope.TopicID != "":
		pool = snap.finalsByTopic[scope.TopicID][tier]
	default:
		pool = snap.finalsByTier[tier]
	}
	return exclude(pool, scope.ExcludeSubtopics)
}

// sample picks n distinct questions with a partial Fisher-Yates shuffle over indexes.
func (c *Catalog) sample(pool []domain.Question, n int) []domain.Question {
	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	c.rndMu.Lock()
	for i := 0; i < n; i++ {
		j := i + c.rnd.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	c.rndMu.Unlock()

	out := make([]domain.Question, n)
	for i := 0; i < n; i++ {
		out[i] = pool[idx[i]]
	}
	return out
}

func exclude(pool []domain.Question, subtopics []string) []domain.Question {
	if len(subtopics) == 0 {
		return pool
	}
	skip := make(map[string]struct{}, len(subtopics))
	for _, id := range subtopics {
		skip[id] = struct{}{}
	}
	out := make([]domain.Question, 0, len(pool))
	for _, q := range pool {
		if _, ok := skip[q.SubtopicID]; !ok {
			out = append(out, q)
		}
	}
	return out
}
