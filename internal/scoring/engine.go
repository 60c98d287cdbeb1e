// Package scoring turns a session snapshot and a caller's answers into a score.
// It performs no I/O; malformed answers are scored as incorrect, never as errors.
package scoring

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"quizbee-service/internal/domain"
)

// Pass thresholds in percent.
const (
	EliminationPassThreshold = 70.0
	FinalsPassThreshold      = 80.0
)

// Answers maps question id to the submitted value as decoded from JSON
// (float64, string, json.Number, or anything else a client sends).
type Answers map[string]any

// Engine scores submissions. The zero value is ready to use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Score evaluates every question of the snapshot in order. Total is always the
// snapshot size, regardless of how many answers were sent.
func (e *Engine) Score(session domain.Session, answers Answers) domain.ScoreResult {
	records := make([]domain.AnswerRecord, 0, len(session.Questions))
	correct := 0
	for _, q := range session.Questions {
		raw, ok := answers[q.ID]
		rec := domain.AnswerRecord{QuestionID: q.ID}
		if ok {
			rec.Submitted = render(raw)
			rec.Correct = isCorrect(q, raw)
		}
		if rec.Correct {
			correct++
		}
		records = append(records, rec)
	}

	total := len(session.Questions)
	pct := Percentage(correct, total)
	return domain.ScoreResult{
		Mode:    session.Mode,
		Answers: records,
		Score: domain.Score{
			Correct:    correct,
			Total:      total,
			Percentage: pct,
		},
		Passed: total > 0 && pct >= PassThreshold(session.Mode),
	}
}

// Percentage is 100*correct/total rounded to one decimal.
func Percentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	raw := float64(correct*100) / float64(total)
	return math.Round(raw*10) / 10
}

// PassThreshold returns the pass mark for a mode.
func PassThreshold(mode domain.Mode) float64 {
	if mode == domain.ModeFinals {
		return FinalsPassThreshold
	}
	return EliminationPassThreshold
}

func isCorrect(q domain.Question, raw any) bool {
	switch {
	case q.Choice != nil:
		idx, ok := optionIndex(raw)
		return ok && idx >= 0 && idx < len(q.Choice.Options) && idx == q.Choice.Correct
	case q.Identification != nil:
		text, ok := answerText(raw)
		if !ok {
			return false
		}
		return matches(text, q.Identification)
	}
	return false
}

func matches(text string, key *domain.IdentificationKey) bool {
	given := strings.TrimSpace(text)
	if given == "" {
		return false
	}
	if strings.EqualFold(given, strings.TrimSpace(key.Answer)) {
		return true
	}
	for _, alt := range key.Alternatives {
		if strings.EqualFold(given, strings.TrimSpace(alt)) {
			return true
		}
	}
	return false
}

func optionIndex(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func answerText(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	}
	return "", false
}

// render stores whatever the client sent in a printable, bounded form.
func render(raw any) string {
	var s string
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		s = v
	default:
		if text, ok := answerText(v); ok {
			s = text
		} else if data, err := json.Marshal(v); err == nil {
			s = string(data)
		}
	}
	if len(s) > maxSubmittedLen {
		s = s[:maxSubmittedLen]
	}
	return s
}

const maxSubmittedLen = 512
