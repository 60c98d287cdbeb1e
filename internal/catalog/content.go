package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"quizbee-service/internal/domain"
)

// EliminationOptions is the fixed option count of an elimination question.
const EliminationOptions = 4

// Content is the raw hierarchy produced by a Loader.
type Content struct {
	Topics    []domain.Topic
	Questions []domain.Question
}

type topicIndex struct {
	TopicID     string `json:"topic_id"`
	TopicName   string `json:"topic_name"`
	Description string `json:"description"`
	Subtopics   []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"subtopics"`
}

type questionFile struct {
	SubtopicID   string        `json:"subtopic_id"`
	SubtopicName string        `json:"subtopic_name"`
	Mode         string        `json:"mode"`
	Difficulty   string        `json:"difficulty"`
	Questions    []rawQuestion `json:"questions"`
}

type rawQuestion struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	Correct      *int     `json:"correct"`
	Answer       string   `json:"answer"`
	Alternatives []string `json:"alternatives"`
	Explanation  string   `json:"explanation"`
}

// ParseTopicIndex decodes a topic index document.
func ParseTopicIndex(data []byte) (domain.Topic, error) {
	var idx topicIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return domain.Topic{}, fmt.Errorf("decode topic index: %w", err)
	}
	if strings.TrimSpace(idx.TopicID) == "" {
		return domain.Topic{}, errors.New("topic index: missing topic_id")
	}
	topic := domain.Topic{
		ID:          idx.TopicID,
		Name:        idx.TopicName,
		Description: idx.Description,
		Subtopics:   make([]domain.Subtopic, 0, len(idx.Subtopics)),
	}
	seen := make(map[string]struct{}, len(idx.Subtopics))
	for _, st := range idx.Subtopics {
		if strings.TrimSpace(st.ID) == "" {
			return domain.Topic{}, fmt.Errorf("topic %s: subtopic without id", idx.TopicID)
		}
		if _, dup := seen[st.ID]; dup {
			return domain.Topic{}, fmt.Errorf("topic %s: duplicate subtopic %s", idx.TopicID, st.ID)
		}
		seen[st.ID] = struct{}{}
		topic.Subtopics = append(topic.Subtopics, domain.Subtopic{
			ID:          st.ID,
			TopicID:     idx.TopicID,
			Name:        st.Name,
			Description: st.Description,
		})
	}
	return topic, nil
}

// ParseSubtopicFile is ParseQuestionFile for a file stored under a subtopic
// directory; the file must declare that subtopic.
func ParseSubtopicFile(topicID, subtopicID string, data []byte) ([]domain.Question, error) {
	questions, err := ParseQuestionFile(topicID, data)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		if q.SubtopicID != subtopicID {
			return nil, fmt.Errorf("subtopic_id %q does not match directory %q", q.SubtopicID, subtopicID)
		}
	}
	return questions, nil
}

// ParseQuestionFile decodes and validates one question set. Every question is
// checked against its mode here so scoring never sees an ambiguous record.
func ParseQuestionFile(topicID string, data []byte) ([]domain.Question, error) {
	var f questionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode question file: %w", err)
	}
	if strings.TrimSpace(f.SubtopicID) == "" {
		return nil, errors.New("question file: missing subtopic_id")
	}
	mode, err := domain.ParseMode(f.Mode)
	if err != nil {
		return nil, fmt.Errorf("question file %s: %w", f.SubtopicID, err)
	}

	var difficulty domain.Difficulty
	if mode == domain.ModeFinals {
		difficulty, err = domain.ParseDifficulty(f.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("question file %s: %w", f.SubtopicID, err)
		}
	}

	out := make([]domain.Question, 0, len(f.Questions))
	for i, raw := range f.Questions {
		q := domain.Question{
			ID:          raw.ID,
			TopicID:     topicID,
			SubtopicID:  f.SubtopicID,
			Mode:        mode,
			Difficulty:  difficulty,
			Prompt:      strings.TrimSpace(raw.Question),
			Explanation: raw.Explanation,
		}
		if q.ID == "" {
			q.ID = defaultQuestionID(f.SubtopicID, mode, difficulty, i)
		}
		if q.Prompt == "" {
			return nil, fmt.Errorf("question %s: empty prompt", q.ID)
		}

		switch mode {
		case domain.ModeElimination:
			if err := validateChoice(raw); err != nil {
				return nil, fmt.Errorf("question %s: %w", q.ID, err)
			}
			q.Choice = &domain.ChoiceKey{
				Options: append([]string(nil), raw.Options...),
				Correct: *raw.Correct,
			}
		case domain.ModeFinals:
			if err := validateIdentification(raw); err != nil {
				return nil, fmt.Errorf("question %s: %w", q.ID, err)
			}
			q.Identification = &domain.IdentificationKey{
				Answer:       strings.TrimSpace(raw.Answer),
				Alternatives: nonEmpty(raw.Alternatives),
			}
		}
		out = append(out, q)
	}
	return out, nil
}

func validateChoice(raw rawQuestion) error {
	if len(raw.Options) != EliminationOptions {
		return fmt.Errorf("want %d options, got %d", EliminationOptions, len(raw.Options))
	}
	for i, opt := range raw.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("option %d is empty", i)
		}
	}
	if raw.Correct == nil {
		return errors.New("missing correct index")
	}
	if *raw.Correct < 0 || *raw.Correct >= EliminationOptions {
		return fmt.Errorf("correct index %d out of range", *raw.Correct)
	}
	if raw.Answer != "" {
		return errors.New("elimination question carries a finals answer")
	}
	return nil
}

func validateIdentification(raw rawQuestion) error {
	if strings.TrimSpace(raw.Answer) == "" {
		return errors.New("missing answer")
	}
	if len(raw.Options) > 0 || raw.Correct != nil {
		return errors.New("finals question carries options")
	}
	return nil
}

func defaultQuestionID(subtopicID string, mode domain.Mode, difficulty domain.Difficulty, i int) string {
	if mode == domain.ModeFinals {
		return fmt.Sprintf("%s-finals-%s-%03d", subtopicID, difficulty, i+1)
	}
	return fmt.Sprintf("%s-elim-%03d", subtopicID, i+1)
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
