package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quizbee-service/internal/domain"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	mr, client := startRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	session := sampleSession("s-1", now, time.Hour)
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("quiz:session:s-1") {
		t.Fatalf("expected session hash to be set")
	}

	got, err := store.Get(ctx, "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Mode != domain.ModeElimination || got.Label != "Team A" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if len(got.Questions) != 1 || got.Questions[0].Choice == nil || got.Questions[0].Choice.Correct != 2 {
		t.Fatalf("snapshot not preserved: %+v", got.Questions)
	}
	if !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("expires_at mismatch: %v vs %v", got.ExpiresAt, session.ExpiresAt)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreCompleteWithAttemptOnce(t *testing.T) {
	mr, client := startRedis(t)
	store := NewSessionStore(client)
	attempts := NewAttemptStore(client)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	if err := store.Create(ctx, sampleSession("s-1", now, time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.CompleteWithAttempt(ctx, sampleAttempt("a-1", "s-1", true, 75), now.Add(time.Minute)); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	completed, _ := store.Get(ctx, "s-1")
	if !completed.Completed || completed.CompletedAt == nil || !completed.CompletedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected completed session, got %+v", completed)
	}
	if got, err := attempts.GetBySession(ctx, "s-1"); err != nil || got.ID != "a-1" {
		t.Fatalf("expected attempt stored with completion, got %+v %v", got, err)
	}

	err := store.CompleteWithAttempt(ctx, sampleAttempt("a-2", "s-1", false, 10), now.Add(2*time.Minute))
	if !errors.Is(err, domain.ErrSessionAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
	if mr.Exists("quiz:attempt:a-2") {
		t.Fatalf("rejected attempt must not be stored")
	}
	if err := store.CompleteWithAttempt(ctx, sampleAttempt("a-3", "missing", true, 1), now); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreCompleteExpired(t *testing.T) {
	mr, client := startRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	if err := store.Create(ctx, sampleSession("s-1", now, time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CompleteWithAttempt(ctx, sampleAttempt("a-1", "s-1", true, 75), now.Add(time.Hour)); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected expired at the boundary, got %v", err)
	}
	if mr.Exists("quiz:attempt:session:s-1") || mr.Exists("quiz:attempt:a-1") {
		t.Fatalf("expired session must not get an attempt")
	}
}

func TestSessionStoreConcurrentComplete(t *testing.T) {
	_, client := startRedis(t)
	store := NewSessionStore(client)
	attempts := NewAttemptStore(client)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	if err := store.Create(ctx, sampleSession("s-1", now, time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt := sampleAttempt(fmt.Sprintf("a-%d", i), "s-1", true, 75)
			if err := store.CompleteWithAttempt(ctx, attempt, now.Add(time.Second)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	stats, err := attempts.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Attempts != 1 {
		t.Fatalf("expected one counted attempt, got %+v", stats)
	}
}

func TestSessionStoreCompleteLeavesSessionActiveOnOutage(t *testing.T) {
	mr, client := startRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	if err := store.Create(ctx, sampleSession("s-1", now, time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.SetError("ERR simulated outage")
	err := store.CompleteWithAttempt(ctx, sampleAttempt("a-1", "s-1", true, 75), now)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	mr.SetError("")

	got, err := store.Get(ctx, "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Completed {
		t.Fatalf("session must stay active after a failed write")
	}
	if err := store.CompleteWithAttempt(ctx, sampleAttempt("a-1", "s-1", true, 75), now); err != nil {
		t.Fatalf("retry after outage: %v", err)
	}
}

func TestSessionStoreCleanupExpired(t *testing.T) {
	mr, client := startRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	mustCreate := func(s domain.Session) {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("create %s: %v", s.ID, err)
		}
	}
	mustCreate(sampleSession("stale", now, time.Minute))
	mustCreate(sampleSession("done", now, time.Minute))
	mustCreate(sampleSession("fresh", now, 2*time.Hour))
	if err := store.CompleteWithAttempt(ctx, sampleAttempt("a-1", "done", true, 75), now); err != nil {
		t.Fatalf("complete: %v", err)
	}

	removed, err := store.CleanupExpired(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if mr.Exists("quiz:session:stale") {
		t.Fatalf("expected stale session to be removed")
	}
	if !mr.Exists("quiz:session:done") || !mr.Exists("quiz:session:fresh") {
		t.Fatalf("expected completed and fresh sessions to survive")
	}

	removed, err = store.CleanupExpired(ctx, now.Add(time.Hour))
	if err != nil || removed != 0 {
		t.Fatalf("expected idempotent cleanup, got %d, %v", removed, err)
	}
}

func startRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := newClient(mr)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func sampleSession(id string, now time.Time, ttl time.Duration) domain.Session {
	return domain.Session{
		ID:         id,
		Mode:       domain.ModeElimination,
		TopicID:    "hardware",
		SubtopicID: "cpu",
		Label:      "Team A",
		Questions: []domain.Question{{
			ID:         "q1",
			TopicID:    "hardware",
			SubtopicID: "cpu",
			Mode:       domain.ModeElimination,
			Prompt:     "Which unit performs arithmetic?",
			Choice: &domain.ChoiceKey{
				Options: []string{"GPU", "RAM", "ALU", "SSD"},
				Correct: 2,
			},
		}},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
