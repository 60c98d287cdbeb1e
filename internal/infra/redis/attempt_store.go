package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"quizbee-service/internal/domain"
)

const (
	attemptKeyPrefix  = "quiz:attempt:"
	statsKeyPrefix    = "quiz:stats:"
	statsModesKey     = "quiz:stats:modes"
	attemptSessionTag = "quiz:attempt:session:"
)

// AttemptStore reads attempts stored as JSON strings by SessionStore.CompleteWithAttempt.
type AttemptStore struct {
	client *redis.Client
}

func NewAttemptStore(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client}
}

func (s *AttemptStore) Get(ctx context.Context, id string) (domain.Attempt, error) {
	body, err := s.client.Get(ctx, attemptKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, domain.Persistence("get attempt", err)
	}
	var attempt domain.Attempt
	if err := json.Unmarshal(body, &attempt); err != nil {
		return domain.Attempt{}, domain.Persistence("decode attempt", err)
	}
	return attempt, nil
}

func (s *AttemptStore) GetBySession(ctx context.Context, sessionID string) (domain.Attempt, error) {
	id, err := s.client.Get(ctx, attemptSessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, domain.Persistence("get attempt by session", err)
	}
	return s.Get(ctx, id)
}

func (s *AttemptStore) Stats(ctx context.Context) ([]domain.ModeStats, error) {
	modes, err := s.client.SMembers(ctx, statsModesKey).Result()
	if err != nil {
		return nil, domain.Persistence("list stat modes", err)
	}
	sort.Strings(modes)
	out := make([]domain.ModeStats, 0, len(modes))
	for _, mode := range modes {
		fields, err := s.client.HGetAll(ctx, statsKeyPrefix+mode).Result()
		if err != nil {
			return nil, domain.Persistence("read stats", err)
		}
		st := domain.ModeStats{Mode: domain.Mode(mode)}
		st.Attempts, _ = strconv.Atoi(fields["attempts"])
		st.Passed, _ = strconv.Atoi(fields["passed"])
		sum, _ := strconv.ParseFloat(fields["score_sum"], 64)
		seconds, _ := strconv.ParseInt(fields["time_sum"], 10, 64)
		if st.Attempts > 0 {
			st.AverageScore = math.Round(sum/float64(st.Attempts)*10) / 10
			st.AverageTimeSeconds = math.Round(float64(seconds)/float64(st.Attempts)*10) / 10
		}
		out = append(out, st)
	}
	return out, nil
}

func attemptSessionKey(sessionID string) string {
	return attemptSessionTag + sessionID
}
