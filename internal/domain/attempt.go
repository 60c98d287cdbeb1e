package domain

import "time"

// AnswerRecord is the scored outcome of one question.
type AnswerRecord struct {
	QuestionID string `json:"questionId"`
	Submitted  string `json:"submitted"`
	Correct    bool   `json:"correct"`
}

// Score aggregates an attempt. Total is the size of the session snapshot.
type Score struct {
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ScoreResult is the ScoringEngine output.
type ScoreResult struct {
	Mode    Mode           `json:"mode"`
	Answers []AnswerRecord `json:"answers"`
	Score   Score          `json:"score"`
	Passed  bool           `json:"passed"`
}

// Attempt is the immutable record of a scored submission. TimeTakenSeconds is
// the time between session start and submission.
type Attempt struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"sessionId"`
	Mode             Mode           `json:"mode"`
	TopicID          string         `json:"topicId,omitempty"`
	SubtopicID       string         `json:"subtopicId,omitempty"`
	Difficulty       Difficulty     `json:"difficulty,omitempty"`
	Answers          []AnswerRecord `json:"answers"`
	Score            Score          `json:"score"`
	Passed           bool           `json:"passed"`
	Label            string         `json:"label,omitempty"`
	TimeTakenSeconds int            `json:"timeTakenSeconds"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// QuestionReview is per-question feedback shown after submission.
type QuestionReview struct {
	QuestionID    string `json:"questionId"`
	Prompt        string `json:"prompt"`
	Submitted     string `json:"submitted"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
}

// AttemptSummary is returned by submit and get-attempt.
type AttemptSummary struct {
	Attempt Attempt          `json:"attempt"`
	Review  []QuestionReview `json:"review"`
}

// ModeStats is a read-only aggregate for the reporting layer.
type ModeStats struct {
	Mode         Mode    `json:"mode"`
	Attempts     int     `json:"attempts"`
	Passed       int     `json:"passed"`
	AverageScore float64 `json:"averageScore"`
	// AverageTimeSeconds is rounded to one decimal.
	AverageTimeSeconds float64 `json:"averageTimeSeconds"`
}
