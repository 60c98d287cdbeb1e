package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"quizbee-service/internal/app"
	"quizbee-service/internal/catalog"
	"quizbee-service/internal/domain"
	"quizbee-service/internal/events"
	"quizbee-service/internal/infra/memory"
	"quizbee-service/internal/scoring"
)

type fixture struct {
	service  *app.QuizService
	sessions *memory.SessionStore
	attempts *memory.AttemptStore
	bus      *events.Bus
	events   *recorder
	now      time.Time
	clockMu  sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.now = f.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) handle(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// newFixture wires the service over memory stores. wrap, when set, decorates
// the session store handed to the service.
func newFixture(t *testing.T, wrap func(*memory.SessionStore) app.SessionRepository) *fixture {
	t.Helper()
	attempts := memory.NewAttemptStore()
	f := &fixture{
		sessions: memory.NewSessionStore(attempts),
		attempts: attempts,
		bus:      events.NewBus(nil),
		events:   &recorder{},
		now:      time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	var sessions app.SessionRepository = f.sessions
	if wrap != nil {
		sessions = wrap(f.sessions)
	}
	for _, kind := range events.AllKinds {
		f.bus.Subscribe(kind, "recorder", f.events.handle)
	}

	cfg := app.DefaultConfig()
	cfg.EliminationCount = 4
	cfg.ReviewCount = 2
	cat := catalog.New(catalog.NewStaticLoader(sampleContent()))
	seq := 0
	var idMu sync.Mutex
	f.service = app.NewQuizService(cat, sessions, f.attempts, f.bus, cfg,
		app.WithClock(f.clock),
		app.WithIDGenerator(func() string {
			idMu.Lock()
			defer idMu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		}))
	return f
}

func sampleContent() catalog.Content {
	content := catalog.Content{
		Topics: []domain.Topic{
			{
				ID:        "computing",
				Name:      "Computing",
				Subtopics: []domain.Subtopic{{ID: "hardware", TopicID: "computing", Name: "Hardware"}},
			},
			{
				ID:        "science",
				Name:      "Science",
				Subtopics: []domain.Subtopic{{ID: "physics", TopicID: "science", Name: "Physics"}},
			},
		},
	}
	for i, correct := range []int{1, 0, 2, 3} {
		content.Questions = append(content.Questions, domain.Question{
			ID:          fmt.Sprintf("e%d", i+1),
			SubtopicID:  "hardware",
			Mode:        domain.ModeElimination,
			Prompt:      fmt.Sprintf("elimination %d", i+1),
			Explanation: "see notes",
			Choice:      &domain.ChoiceKey{Options: []string{"a", "b", "c", "d"}, Correct: correct},
		})
	}
	for _, tier := range domain.Difficulties {
		for i := 0; i < catalog.FinalsPerTier; i++ {
			content.Questions = append(content.Questions, domain.Question{
				ID:             fmt.Sprintf("f-%s-%d", tier, i),
				SubtopicID:     "hardware",
				Mode:           domain.ModeFinals,
				Difficulty:     tier,
				Prompt:         "What does CPU stand for?",
				Identification: &domain.IdentificationKey{Answer: "Central Processing Unit", Alternatives: []string{"CPU"}},
			})
			content.Questions = append(content.Questions, domain.Question{
				ID:             fmt.Sprintf("p-%s-%d", tier, i),
				SubtopicID:     "physics",
				Mode:           domain.ModeFinals,
				Difficulty:     tier,
				Prompt:         "Unit of force?",
				Identification: &domain.IdentificationKey{Answer: "Newton"},
			})
		}
	}
	return content
}

func correctElimination(view domain.SessionView) scoring.Answers {
	keys := map[string]int{"e1": 1, "e2": 0, "e3": 2, "e4": 3}
	answers := scoring.Answers{}
	for _, q := range view.Questions {
		answers[q.ID] = float64(keys[q.ID])
	}
	return answers
}

func TestStartSessionHidesAnswers(t *testing.T) {
	f := newFixture(t, nil)
	view, err := f.service.StartSession(context.Background(), app.StartRequest{Mode: "elimination"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(view.Questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(view.Questions))
	}
	if view.State != domain.StateActive {
		t.Fatalf("expected active, got %s", view.State)
	}
	if !view.ExpiresAt.Equal(f.now.Add(2 * time.Hour)) {
		t.Fatalf("expected 2h ttl, got %s", view.ExpiresAt)
	}
	for _, q := range view.Questions {
		if len(q.Options) != 4 {
			t.Fatalf("expected options on public question")
		}
	}
	if got := f.events.kinds(); len(got) != 1 || got[0] != domain.EventSessionStarted {
		t.Fatalf("expected session started event, got %v", got)
	}
}

func TestStartSessionModes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	review, err := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination", SubtopicID: "hardware"})
	if err != nil || len(review.Questions) != 2 {
		t.Fatalf("expected 2 review questions, got %d (%v)", len(review.Questions), err)
	}

	finals, err := f.service.StartSession(ctx, app.StartRequest{Mode: "finals"})
	if err != nil {
		t.Fatalf("finals: %v", err)
	}
	if len(finals.Questions) != 30 || finals.Questions[0].Difficulty != domain.DifficultyEasy || finals.Questions[29].Difficulty != domain.DifficultyDifficult {
		t.Fatalf("unexpected finals layout")
	}
	if !finals.ExpiresAt.Equal(f.now.Add(time.Hour)) {
		t.Fatalf("expected finals ttl 1h, got %s", finals.ExpiresAt)
	}

	stage, err := f.service.StartSession(ctx, app.StartRequest{Mode: "finals", Difficulty: "average"})
	if err != nil || len(stage.Questions) != 10 {
		t.Fatalf("expected 10 stage questions, got %d (%v)", len(stage.Questions), err)
	}

	if _, err := f.service.StartSession(ctx, app.StartRequest{Mode: "speedrun"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := f.service.StartSession(ctx, app.StartRequest{Mode: "finals", Difficulty: "hard"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid difficulty, got %v", err)
	}
	if _, err := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination", SubtopicID: "nope"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStartFinalsHonoursTopicScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	science, err := f.service.StartSession(ctx, app.StartRequest{Mode: "finals", TopicID: "science"})
	if err != nil {
		t.Fatalf("finals for science: %v", err)
	}
	if len(science.Questions) != 30 {
		t.Fatalf("expected 30 questions, got %d", len(science.Questions))
	}
	for _, q := range science.Questions {
		if !strings.HasPrefix(q.ID, "p-") {
			t.Fatalf("question %s is outside topic science", q.ID)
		}
	}

	stage, err := f.service.StartSession(ctx, app.StartRequest{Mode: "finals", TopicID: "computing", Difficulty: "difficult"})
	if err != nil {
		t.Fatalf("stage for computing: %v", err)
	}
	for _, q := range stage.Questions {
		if !strings.HasPrefix(q.ID, "f-") {
			t.Fatalf("question %s is outside topic computing", q.ID)
		}
	}

	excluded, err := f.service.StartSession(ctx, app.StartRequest{Mode: "finals", Difficulty: "easy", ExcludeSubtopics: []string{"hardware"}})
	if err != nil {
		t.Fatalf("finals excluding hardware: %v", err)
	}
	for _, q := range excluded.Questions {
		if !strings.HasPrefix(q.ID, "p-") {
			t.Fatalf("excluded subtopic question %s selected", q.ID)
		}
	}

	if _, err := f.service.StartSession(ctx, app.StartRequest{Mode: "finals", TopicID: "nope"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown topic to be rejected, got %v", err)
	}
	if _, err := f.service.StartSession(ctx, app.StartRequest{Mode: "finals", TopicID: "science", SubtopicID: "hardware"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected subtopic outside topic to be rejected, got %v", err)
	}
	if _, err := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination", ExcludeSubtopics: []string{"hardware"}}); !errors.Is(err, domain.ErrInsufficientQuestions) {
		t.Fatalf("expected empty elimination pool after exclusion, got %v", err)
	}
}

func TestSubmitRecordsTimeTaken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	view, err := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.advance(95 * time.Second)

	summary, err := f.service.Submit(ctx, view.ID, correctElimination(view), "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Attempt.TimeTakenSeconds != 95 {
		t.Fatalf("expected 95s taken, got %d", summary.Attempt.TimeTakenSeconds)
	}
	stored, err := f.service.GetAttempt(ctx, summary.Attempt.ID)
	if err != nil || stored.Attempt.TimeTakenSeconds != 95 {
		t.Fatalf("stored attempt lost time taken: %+v %v", stored.Attempt, err)
	}
	stats, _ := f.service.Stats(ctx)
	if len(stats) != 1 || stats[0].AverageTimeSeconds != 95 {
		t.Fatalf("expected average time 95s, got %+v", stats)
	}
}

func TestSubmitScoresAndPublishesAfterRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	view, err := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	stored := 0
	f.bus.Subscribe(domain.EventQuizCompleted, "durability", func(ctx context.Context, e domain.Event) error {
		if _, err := f.attempts.Get(ctx, e.Payload["attempt_id"].(string)); err == nil {
			stored++
		}
		return nil
	})

	answers := correctElimination(view)
	// one wrong answer on e3 -> 3/4
	answers["e3"] = float64(1)
	summary, err := f.service.Submit(ctx, view.ID, answers, "  Team Blue\n")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	score := summary.Attempt.Score
	if score.Correct != 3 || score.Total != 4 || score.Percentage != 75 || !summary.Attempt.Passed {
		t.Fatalf("unexpected score %+v passed=%v", score, summary.Attempt.Passed)
	}
	if summary.Attempt.Label != "Team Blue" {
		t.Fatalf("expected sanitised label, got %q", summary.Attempt.Label)
	}
	if len(summary.Review) != 4 || summary.Review[0].Explanation != "see notes" {
		t.Fatalf("expected review with explanations, got %+v", summary.Review)
	}
	if stored != 1 {
		t.Fatalf("completion event must see the stored attempt")
	}
	kinds := f.events.kinds()
	if kinds[len(kinds)-1] != domain.EventQuizCompleted {
		t.Fatalf("expected completion event, got %v", kinds)
	}

	status, err := f.service.ValidateSession(ctx, view.ID)
	if err != nil || status.State != domain.StateCompleted {
		t.Fatalf("expected completed status, got %+v %v", status, err)
	}
}

func TestSubmitHighScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	view, _ := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination"})
	if _, err := f.service.Submit(ctx, view.ID, correctElimination(view), ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	kinds := f.events.kinds()
	if kinds[len(kinds)-1] != domain.EventHighScoreAchieved {
		t.Fatalf("expected high score event last, got %v", kinds)
	}
}

func TestSubmitFinalsAcceptsAlternative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	view, err := f.service.StartSession(ctx, app.StartRequest{Mode: "finals", TopicID: "computing", Difficulty: "easy"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answers := scoring.Answers{}
	for i, q := range view.Questions {
		if i < 8 {
			answers[q.ID] = "cpu"
		}
	}
	summary, err := f.service.Submit(ctx, view.ID, answers, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Attempt.Score.Percentage != 80 || !summary.Attempt.Passed {
		t.Fatalf("expected 80%% pass, got %+v", summary.Attempt.Score)
	}
}

func TestSubmitTwiceReturnsOriginalAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	view, _ := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination"})

	first, err := f.service.Submit(ctx, view.ID, correctElimination(view), "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = f.service.Submit(ctx, view.ID, scoring.Answers{}, "")
	if !errors.Is(err, domain.ErrSessionAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
	var dup *domain.DuplicateSubmissionError
	if !errors.As(err, &dup) || dup.Attempt.ID != first.Attempt.ID {
		t.Fatalf("expected original attempt in error, got %v", err)
	}

	again, err := f.service.GetAttempt(ctx, first.Attempt.ID)
	if err != nil || again.Attempt.Score.Percentage != 100 {
		t.Fatalf("original attempt changed: %+v %v", again.Attempt.Score, err)
	}
}

func TestSubmitConcurrentlyScoresOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	view, _ := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination"})

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Submit(ctx, view.ID, correctElimination(view), "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrSessionAlreadyCompleted):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one success, got %d", ok)
	}
	stats, _ := f.service.Stats(ctx)
	if len(stats) != 1 || stats[0].Attempts != 1 {
		t.Fatalf("expected one attempt recorded, got %+v", stats)
	}
}

func TestSubmitAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	view, _ := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination"})
	f.advance(2*time.Hour + time.Second)

	if _, err := f.service.Submit(ctx, view.ID, correctElimination(view), ""); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := f.attempts.GetBySession(ctx, view.ID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("no attempt may be created after expiry")
	}

	removed, err := f.service.CleanupExpired(ctx, 0)
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 expired session removed, got %d (%v)", removed, err)
	}
	if _, err := f.service.Submit(ctx, view.ID, nil, ""); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found after cleanup, got %v", err)
	}
}

// unavailableSessions fails the completing write the way an unreachable store
// does, while reads keep working.
type unavailableSessions struct {
	*memory.SessionStore
	down bool
}

func (u *unavailableSessions) CompleteWithAttempt(ctx context.Context, a domain.Attempt, now time.Time) error {
	if u.down {
		return domain.Persistence("complete session", errors.New("connection refused"))
	}
	return u.SessionStore.CompleteWithAttempt(ctx, a, now)
}

func TestSubmitStoreOutageLeavesSessionRetryable(t *testing.T) {
	ctx := context.Background()
	var store *unavailableSessions
	f := newFixture(t, func(s *memory.SessionStore) app.SessionRepository {
		store = &unavailableSessions{SessionStore: s, down: true}
		return store
	})
	view, _ := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination"})

	if _, err := f.service.Submit(ctx, view.ID, correctElimination(view), ""); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	status, _ := f.service.ValidateSession(ctx, view.ID)
	if status.State != domain.StateActive {
		t.Fatalf("session must not be completed without an attempt, got %s", status.State)
	}
	if _, err := f.attempts.GetBySession(ctx, view.ID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected no attempt after outage, got %v", err)
	}
	if _, err := f.service.Submit(ctx, view.ID, correctElimination(view), ""); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error while store is down, got %v", err)
	}
	for _, k := range f.events.kinds() {
		if k == domain.EventQuizCompleted {
			t.Fatalf("no completion event may be published for an unrecorded attempt")
		}
	}

	store.down = false
	summary, err := f.service.Submit(ctx, view.ID, correctElimination(view), "")
	if err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if got, err := f.attempts.GetBySession(ctx, view.ID); err != nil || got.ID != summary.Attempt.ID {
		t.Fatalf("expected retry attempt stored, got %+v %v", got, err)
	}
}

func TestObserverFailureDoesNotBreakSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.bus.Subscribe(domain.EventQuizCompleted, "broken", func(context.Context, domain.Event) error {
		panic("analytics down")
	})
	view, _ := f.service.StartSession(ctx, app.StartRequest{Mode: "elimination"})
	if _, err := f.service.Submit(ctx, view.ID, correctElimination(view), ""); err != nil {
		t.Fatalf("observer failure leaked into submit: %v", err)
	}
}

func TestUnknownIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.service.Submit(ctx, "nope", nil, ""); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if _, err := f.service.GetAttempt(ctx, "nope"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
	if _, err := f.service.ValidateSession(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestSanitizeLabel(t *testing.T) {
	long := ""
	for i := 0; i < 150; i++ {
		long += "x"
	}
	cases := map[string]string{
		"":                "",
		"  Alice  ":       "Alice",
		"Bob\x00\x1b[31m": "Bob[31m",
		long:              long[:app.MaxLabelLength],
	}
	for in, want := range cases {
		if got := app.SanitizeLabel(in); got != want {
			t.Fatalf("SanitizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
