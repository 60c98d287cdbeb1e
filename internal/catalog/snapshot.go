package catalog

import (
	"fmt"
	"sort"
	"time"

	"quizbee-service/internal/domain"
)

// Snapshot is an immutable, indexed view of one catalog version.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time

	topics        []domain.Topic
	topicByID     map[string]domain.Topic
	subtopicTopic map[string]string

	elimination   []domain.Question
	elimByTopic   map[string][]domain.Question
	elimBySub     map[string][]domain.Question
	finalsByTier  map[domain.Difficulty][]domain.Question
	finalsByTopic map[string]map[domain.Difficulty][]domain.Question
	finalsBySub   map[string]map[domain.Difficulty][]domain.Question
	questionCount int
}

func newSnapshot(content Content, version int64, loadedAt time.Time) (*Snapshot, error) {
	s := &Snapshot{
		Version:       version,
		LoadedAt:      loadedAt,
		topicByID:     make(map[string]domain.Topic, len(content.Topics)),
		subtopicTopic: make(map[string]string),
		elimByTopic:   make(map[string][]domain.Question),
		elimBySub:     make(map[string][]domain.Question),
		finalsByTier:  make(map[domain.Difficulty][]domain.Question),
		finalsByTopic: make(map[string]map[domain.Difficulty][]domain.Question),
		finalsBySub:   make(map[string]map[domain.Difficulty][]domain.Question),
	}

	for _, t := range content.Topics {
		if _, dup := s.topicByID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic %s", t.ID)
		}
		for _, st := range t.Subtopics {
			if owner, dup := s.subtopicTopic[st.ID]; dup {
				return nil, fmt.Errorf("subtopic %s listed under %s and %s", st.ID, owner, t.ID)
			}
			s.subtopicTopic[st.ID] = t.ID
		}
		s.topicByID[t.ID] = t
		s.topics = append(s.topics, t)
	}
	sort.SliceStable(s.topics, func(i, j int) bool {
		if s.topics[i].Name != s.topics[j].Name {
			return s.topics[i].Name < s.topics[j].Name
		}
		return s.topics[i].ID < s.topics[j].ID
	})

	seen := make(map[string]struct{}, len(content.Questions))
	for _, q := range content.Questions {
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %s", q.ID)
		}
		seen[q.ID] = struct{}{}
		topicID, ok := s.subtopicTopic[q.SubtopicID]
		if !ok {
			return nil, fmt.Errorf("question %s references unknown subtopic %s", q.ID, q.SubtopicID)
		}
		q.TopicID = topicID

		switch q.Mode {
		case domain.ModeElimination:
			s.elimination = append(s.elimination, q)
			s.elimByTopic[topicID] = append(s.elimByTopic[topicID], q)
			s.elimBySub[q.SubtopicID] = append(s.elimBySub[q.SubtopicID], q)
		case domain.ModeFinals:
			s.finalsByTier[q.Difficulty] = append(s.finalsByTier[q.Difficulty], q)
			addTier(s.finalsByTopic, topicID, q)
			addTier(s.finalsBySub, q.SubtopicID, q)
		default:
			return nil, fmt.Errorf("question %s has unknown mode %q", q.ID, q.Mode)
		}
	}
	s.questionCount = len(seen)
	return s, nil
}

func addTier(index map[string]map[domain.Difficulty][]domain.Question, key string, q domain.Question) {
	tiers := index[key]
	if tiers == nil {
		tiers = make(map[domain.Difficulty][]domain.Question)
		index[key] = tiers
	}
	tiers[q.Difficulty] = append(tiers[q.Difficulty], q)
}

// Topics returns topics ordered by name.
func (s *Snapshot) Topics() []domain.Topic {
	return append([]domain.Topic(nil), s.topics...)
}

// Topic looks up a topic by id.
func (s *Snapshot) Topic(id string) (domain.Topic, bool) {
	t, ok := s.topicByID[id]
	return t, ok
}

// HasSubtopic reports whether a subtopic id is known.
func (s *Snapshot) HasSubtopic(id string) bool {
	_, ok := s.subtopicTopic[id]
	return ok
}

// QuestionCount is the number of loaded questions across all modes.
func (s *Snapshot) QuestionCount() int {
	return s.questionCount
}

// EliminationCount is the elimination pool size of a subtopic, or of the whole
// catalog when subtopicID is empty.
func (s *Snapshot) EliminationCount(subtopicID string) int {
	if subtopicID == "" {
		return len(s.elimination)
	}
	return len(s.elimBySub[subtopicID])
}

// FinalsCount is the finals pool size of one tier, scoped like EliminationCount.
func (s *Snapshot) FinalsCount(subtopicID string, tier domain.Difficulty) int {
	if subtopicID == "" {
		return len(s.finalsByTier[tier])
	}
	return len(s.finalsBySub[subtopicID][tier])
}
