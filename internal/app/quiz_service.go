package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizbee-service/internal/catalog"
	"quizbee-service/internal/domain"
	"quizbee-service/internal/scoring"
)

// Config holds quiz rules that vary per deployment.
type Config struct {
	EliminationTTL     time.Duration
	FinalsTTL          time.Duration
	EliminationCount   int
	ReviewCount        int
	StageCount         int
	HighScoreThreshold float64
}

func DefaultConfig() Config {
	return Config{
		EliminationTTL:     2 * time.Hour,
		FinalsTTL:          time.Hour,
		EliminationCount:   100,
		ReviewCount:        10,
		StageCount:         10,
		HighScoreThreshold: 90,
	}
}

// StartRequest describes the quiz a client asks for. Empty scope fields mean
// "across all topics".
type StartRequest struct {
	Mode             string
	TopicID          string
	SubtopicID       string
	ExcludeSubtopics []string
	Difficulty       string
	Label            string
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	catalog  QuestionCatalog
	sessions SessionRepository
	attempts AttemptRepository
	recorder *AttemptRecorder
	engine   *scoring.Engine
	bus      Publisher
	cfg      Config
	clock    func() time.Time
	newID    func() string
	log      *zap.Logger
}

// Option customises a QuizService.
type Option func(*QuizService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.clock = now }
}

// WithIDGenerator replaces uuid-based ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *QuizService) { s.newID = newID }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *QuizService) { s.log = log }
}

func NewQuizService(cat QuestionCatalog, sessions SessionRepository, attempts AttemptRepository, bus Publisher, cfg Config, opts ...Option) *QuizService {
	s := &QuizService{
		catalog:  cat,
		sessions: sessions,
		attempts: attempts,
		engine:   scoring.NewEngine(),
		bus:      bus,
		cfg:      cfg,
		clock:    time.Now,
		newID:    uuid.NewString,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = NewAttemptRecorder(sessions, s.newID)
	return s
}

func (s *QuizService) now() time.Time {
	return s.clock().UTC()
}

func (s *QuizService) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	return s.catalog.ListTopics(ctx)
}

func (s *QuizService) ListSubtopics(ctx context.Context, topicID string) ([]domain.Subtopic, error) {
	return s.catalog.ListSubtopics(ctx, topicID)
}

// StartSession selects questions, persists a session with a frozen snapshot and
// returns the client payload without answer keys.
func (s *QuizService) StartSession(ctx context.Context, req StartRequest) (domain.SessionView, error) {
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		return domain.SessionView{}, err
	}
	var difficulty domain.Difficulty
	if req.Difficulty != "" && mode == domain.ModeFinals {
		if difficulty, err = domain.ParseDifficulty(req.Difficulty); err != nil {
			return domain.SessionView{}, err
		}
	}

	questions, err := s.selectQuestions(ctx, mode, req, difficulty)
	if err != nil {
		return domain.SessionView{}, err
	}

	now := s.now()
	session := domain.Session{
		ID:         s.newID(),
		Mode:       mode,
		TopicID:    req.TopicID,
		SubtopicID: req.SubtopicID,
		Difficulty: difficulty,
		Label:      SanitizeLabel(req.Label),
		Questions:  append([]domain.Question(nil), questions...),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl(mode)),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.SessionView{}, err
	}

	s.bus.Publish(ctx, domain.Event{
		Kind:      domain.EventSessionStarted,
		Timestamp: now,
		Payload: map[string]any{
			"session_id":     session.ID,
			"mode":           string(mode),
			"topic_id":       session.TopicID,
			"subtopic_id":    session.SubtopicID,
			"difficulty":     string(difficulty),
			"question_count": len(session.Questions),
			"label":          session.Label,
		},
	})
	return view(session, now), nil
}

func (s *QuizService) selectQuestions(ctx context.Context, mode domain.Mode, req StartRequest, difficulty domain.Difficulty) ([]domain.Question, error) {
	scope := catalog.Scope{TopicID: req.TopicID, SubtopicID: req.SubtopicID, ExcludeSubtopics: req.ExcludeSubtopics}
	switch mode {
	case domain.ModeElimination:
		count := s.cfg.EliminationCount
		if req.TopicID != "" || req.SubtopicID != "" {
			count = s.cfg.ReviewCount
		}
		return s.catalog.SelectElimination(ctx, count, scope)
	case domain.ModeFinals:
		if difficulty != "" {
			return s.catalog.SelectFinalsStage(ctx, scope, difficulty, s.cfg.StageCount)
		}
		return s.catalog.SelectFinals(ctx, scope)
	}
	return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidRequest, mode)
}

func (s *QuizService) ttl(mode domain.Mode) time.Duration {
	if mode == domain.ModeFinals {
		return s.cfg.FinalsTTL
	}
	return s.cfg.EliminationTTL
}

// Submit scores a session exactly once. Completion and the attempt are stored
// in one atomic step, so a failed store leaves the session active for a retry.
// Events are published only after the attempt is stored.
func (s *QuizService) Submit(ctx context.Context, sessionID string, answers scoring.Answers, label string) (domain.AttemptSummary, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.AttemptSummary{}, err
	}
	now := s.now()
	if err := session.CheckSubmittable(now); err != nil {
		return domain.AttemptSummary{}, s.rejection(ctx, sessionID, err)
	}

	result := s.engine.Score(session, answers)
	if label == "" {
		label = session.Label
	}
	attempt, err := s.recorder.Record(ctx, session, result, label, now)
	if err != nil {
		return domain.AttemptSummary{}, s.rejection(ctx, sessionID, err)
	}

	s.publishCompletion(ctx, attempt)
	return summarize(session, attempt), nil
}

// rejection turns ErrSessionAlreadyCompleted into a DuplicateSubmissionError when
// the first attempt can be found.
func (s *QuizService) rejection(ctx context.Context, sessionID string, err error) error {
	if !errors.Is(err, domain.ErrSessionAlreadyCompleted) {
		return err
	}
	original, gerr := s.attempts.GetBySession(ctx, sessionID)
	if gerr != nil {
		return err
	}
	return &domain.DuplicateSubmissionError{Attempt: original}
}

func (s *QuizService) publishCompletion(ctx context.Context, attempt domain.Attempt) {
	payload := map[string]any{
		"session_id": attempt.SessionID,
		"attempt_id": attempt.ID,
		"mode":       string(attempt.Mode),
		"correct":    attempt.Score.Correct,
		"total":      attempt.Score.Total,
		"percentage": attempt.Score.Percentage,
		"passed":     attempt.Passed,
		"label":      attempt.Label,
		"time_taken": attempt.TimeTakenSeconds,
	}
	s.bus.Publish(ctx, domain.Event{Kind: domain.EventQuizCompleted, Payload: payload, Timestamp: attempt.CreatedAt})

	if attempt.Score.Percentage >= s.cfg.HighScoreThreshold {
		s.bus.Publish(ctx, domain.Event{
			Kind:      domain.EventHighScoreAchieved,
			Timestamp: attempt.CreatedAt,
			Payload: map[string]any{
				"attempt_id": attempt.ID,
				"mode":       string(attempt.Mode),
				"percentage": attempt.Score.Percentage,
				"label":      attempt.Label,
			},
		})
	}
}

// GetAttempt returns an attempt with per-question review.
func (s *QuizService) GetAttempt(ctx context.Context, attemptID string) (domain.AttemptSummary, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.AttemptSummary{}, err
	}
	session, err := s.sessions.Get(ctx, attempt.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.AttemptSummary{Attempt: attempt}, nil
		}
		return domain.AttemptSummary{}, err
	}
	return summarize(session, attempt), nil
}

// GetSession returns the client payload of an existing session.
func (s *QuizService) GetSession(ctx context.Context, sessionID string) (domain.SessionView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return view(session, s.now()), nil
}

// ValidateSession reports whether a session can still be submitted.
func (s *QuizService) ValidateSession(ctx context.Context, sessionID string) (domain.SessionStatus, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return domain.SessionStatus{
		ID:        session.ID,
		State:     session.State(s.now()),
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Stats is the read-only aggregate exposed to reporting.
func (s *QuizService) Stats(ctx context.Context) ([]domain.ModeStats, error) {
	return s.attempts.Stats(ctx)
}

// CleanupExpired removes abandoned sessions that expired more than grace ago.
func (s *QuizService) CleanupExpired(ctx context.Context, grace time.Duration) (int, error) {
	n, err := s.sessions.CleanupExpired(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, err
	}
	s.log.Info("expired sessions removed", zap.Int("count", n))
	return n, nil
}

func view(session domain.Session, now time.Time) domain.SessionView {
	return domain.SessionView{
		ID:        session.ID,
		Mode:      session.Mode,
		State:     session.State(now),
		ExpiresAt: session.ExpiresAt,
		Questions: session.PublicQuestions(),
	}
}

func summarize(session domain.Session, attempt domain.Attempt) domain.AttemptSummary {
	byID := make(map[string]domain.AnswerRecord, len(attempt.Answers))
	for _, rec := range attempt.Answers {
		byID[rec.QuestionID] = rec
	}
	review := make([]domain.QuestionReview, 0, len(session.Questions))
	for _, q := range session.Questions {
		rec := byID[q.ID]
		review = append(review, domain.QuestionReview{
			QuestionID:    q.ID,
			Prompt:        q.Prompt,
			Submitted:     rec.Submitted,
			Correct:       rec.Correct,
			CorrectAnswer: q.CorrectAnswer(),
			Explanation:   q.Explanation,
		})
	}
	return domain.AttemptSummary{Attempt: attempt, Review: review}
}
