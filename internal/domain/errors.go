package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogUnavailable is returned when the content store cannot be read.
	ErrCatalogUnavailable = errors.New("question catalog unavailable")
	// ErrNotFound indicates an unknown topic or subtopic.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientQuestions is returned when the catalog cannot satisfy a selection.
	ErrInsufficientQuestions = errors.New("insufficient questions")
	// ErrSessionNotFound is returned for unknown or cleaned-up session ids.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionExpired is returned when a submission arrives after the session TTL.
	ErrSessionExpired = errors.New("quiz session expired")
	// ErrSessionAlreadyCompleted is returned for a second submission to the same session.
	ErrSessionAlreadyCompleted = errors.New("quiz session already completed")
	// ErrAttemptNotFound is returned when an attempt id is unknown.
	ErrAttemptNotFound = errors.New("quiz attempt not found")
	// ErrPersistence wraps storage failures.
	ErrPersistence = errors.New("persistence error")
	// ErrInvalidRequest indicates malformed caller input (unknown mode, bad difficulty).
	ErrInvalidRequest = errors.New("invalid request")
)

// DuplicateSubmissionError is returned when a session was already scored.
// Attempt holds the first, authoritative attempt.
type DuplicateSubmissionError struct {
	Attempt Attempt
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("%s: attempt %s", ErrSessionAlreadyCompleted, e.Attempt.ID)
}

func (e *DuplicateSubmissionError) Unwrap() error {
	return ErrSessionAlreadyCompleted
}

// Persistence wraps a storage error so callers can match ErrPersistence.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
