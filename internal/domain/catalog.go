package domain

import "fmt"

// Mode is the quiz format.
type Mode string

const (
	ModeElimination Mode = "elimination"
	ModeFinals      Mode = "finals"
)

// ParseMode validates a raw mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeElimination, ModeFinals:
		return Mode(raw), nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, raw)
}

// Difficulty is the finals tier.
type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyAverage   Difficulty = "average"
	DifficultyDifficult Difficulty = "difficult"
)

// Difficulties lists the finals tiers in ascending order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyAverage, DifficultyDifficult}

// ParseDifficulty validates a raw difficulty string.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch Difficulty(raw) {
	case DifficultyEasy, DifficultyAverage, DifficultyDifficult:
		return Difficulty(raw), nil
	}
	return "", fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, raw)
}

// Rank orders tiers easy < average < difficult; unknown values sort last.
func (d Difficulty) Rank() int {
	for i, v := range Difficulties {
		if v == d {
			return i
		}
	}
	return len(Difficulties)
}

// Topic is a top-level content grouping.
type Topic struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Subtopics   []Subtopic `json:"subtopics"`
}

// Subtopic belongs to exactly one topic.
type Subtopic struct {
	ID          string `json:"id"`
	TopicID     string `json:"topicId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ChoiceKey is the answer key of an elimination question.
type ChoiceKey struct {
	Options []string `json:"options"`
	Correct int      `json:"correct"`
}

// IdentificationKey is the answer key of a finals question.
type IdentificationKey struct {
	Answer       string   `json:"answer"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// Question is a tagged variant: Choice is set for elimination questions,
// Identification for finals questions. Catalog loading rejects anything else.
type Question struct {
	ID             string             `json:"id"`
	TopicID        string             `json:"topicId"`
	SubtopicID     string             `json:"subtopicId"`
	Mode           Mode               `json:"mode"`
	Difficulty     Difficulty         `json:"difficulty,omitempty"`
	Prompt         string             `json:"prompt"`
	Explanation    string             `json:"explanation"`
	Choice         *ChoiceKey         `json:"choice,omitempty"`
	Identification *IdentificationKey `json:"identification,omitempty"`
}

// PublicQuestion is what a client sees before submitting: no answer key.
type PublicQuestion struct {
	ID         string     `json:"id"`
	Mode       Mode       `json:"mode"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Prompt     string     `json:"prompt"`
	Options    []string   `json:"options,omitempty"`
}

// Public strips the answer key.
func (q Question) Public() PublicQuestion {
	pq := PublicQuestion{
		ID:         q.ID,
		Mode:       q.Mode,
		Difficulty: q.Difficulty,
		Prompt:     q.Prompt,
	}
	if q.Choice != nil {
		pq.Options = append([]string(nil), q.Choice.Options...)
	}
	return pq
}

// CorrectAnswer renders the expected answer for review screens.
func (q Question) CorrectAnswer() string {
	switch {
	case q.Choice != nil && q.Choice.Correct >= 0 && q.Choice.Correct < len(q.Choice.Options):
		return q.Choice.Options[q.Choice.Correct]
	case q.Identification != nil:
		return q.Identification.Answer
	}
	return ""
}
