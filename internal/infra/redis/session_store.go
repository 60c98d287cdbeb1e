package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quizbee-service/internal/domain"
)

const (
	sessionKeyPrefix = "quiz:session:"
	expiryIndexKey   = "quiz:sessions:expiry"
)

// Session hashes store timestamps as unix milliseconds so Lua can compare them
// without losing precision.
var (
	// completeScript checks the session, claims the per-session attempt slot,
	// flips completed and stores the attempt with its stats counters.
	// KEYS: session, attempt-by-session, attempt, mode stats, stat modes.
	// ARGV: now ms, attempt id, attempt json, passed, percentage, mode, seconds taken.
	completeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
local state = redis.call('HMGET', KEYS[1], 'completed', 'expires_at')
if tonumber(state[2]) <= tonumber(ARGV[1]) then return 2 end
if state[1] == '1' then return 3 end
if redis.call('SETNX', KEYS[2], ARGV[2]) == 0 then return 3 end
redis.call('HSET', KEYS[1], 'completed', '1', 'completed_at', ARGV[1])
redis.call('SET', KEYS[3], ARGV[3])
redis.call('HINCRBY', KEYS[4], 'attempts', 1)
if ARGV[4] == '1' then redis.call('HINCRBY', KEYS[4], 'passed', 1) end
redis.call('HINCRBYFLOAT', KEYS[4], 'score_sum', ARGV[5])
redis.call('HINCRBY', KEYS[4], 'time_sum', ARGV[7])
redis.call('SADD', KEYS[5], ARGV[6])
return 1
`)

	cleanupScript = redis.NewScript(`
local completed = redis.call('HGET', KEYS[1], 'completed')
redis.call('ZREM', KEYS[2], ARGV[1])
if completed == '0' then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)
)

// SessionStore keeps sessions in Redis hashes. Completion and the attempt write
// are one Lua script, so concurrent submissions across instances are linearised
// and a session is never completed without its attempt.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	questions, err := json.Marshal(session.Questions)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := s.key(session.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"id":           session.ID,
			"mode":         string(session.Mode),
			"topic_id":     session.TopicID,
			"subtopic_id":  session.SubtopicID,
			"difficulty":   string(session.Difficulty),
			"label":        session.Label,
			"questions":    questions,
			"created_at":   session.CreatedAt.UnixMilli(),
			"expires_at":   session.ExpiresAt.UnixMilli(),
			"completed":    "0",
			"completed_at": "",
		})
		pipe.ZAdd(ctx, expiryIndexKey, redis.Z{Score: float64(session.ExpiresAt.UnixMilli()), Member: session.ID})
		return nil
	})
	return domain.Persistence("create session", err)
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return domain.Session{}, domain.Persistence("get session", err)
	}
	if len(fields) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return decodeSession(fields)
}

func (s *SessionStore) CompleteWithAttempt(ctx context.Context, attempt domain.Attempt, now time.Time) error {
	body, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	passed := "0"
	if attempt.Passed {
		passed = "1"
	}
	keys := []string{
		s.key(attempt.SessionID),
		attemptSessionKey(attempt.SessionID),
		attemptKeyPrefix + attempt.ID,
		statsKeyPrefix + string(attempt.Mode),
		statsModesKey,
	}
	code, err := completeScript.Run(ctx, s.client, keys,
		now.UnixMilli(),
		attempt.ID,
		body,
		passed,
		strconv.FormatFloat(attempt.Score.Percentage, 'f', -1, 64),
		string(attempt.Mode),
		attempt.TimeTakenSeconds,
	).Int()
	if err != nil {
		return domain.Persistence("complete session", err)
	}
	switch code {
	case 0:
		return domain.ErrSessionNotFound
	case 2:
		return domain.ErrSessionExpired
	case 3:
		return domain.ErrSessionAlreadyCompleted
	}
	return nil
}

func (s *SessionStore) CleanupExpired(ctx context.Context, olderThan time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(olderThan.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, domain.Persistence("scan expired sessions", err)
	}
	removed := 0
	for _, id := range ids {
		n, err := cleanupScript.Run(ctx, s.client, []string{s.key(id), expiryIndexKey}, id).Int()
		if err != nil {
			return removed, domain.Persistence("delete expired session", err)
		}
		removed += n
	}
	return removed, nil
}

func (s *SessionStore) key(id string) string {
	return sessionKeyPrefix + id
}

func decodeSession(fields map[string]string) (domain.Session, error) {
	session := domain.Session{
		ID:         fields["id"],
		Mode:       domain.Mode(fields["mode"]),
		TopicID:    fields["topic_id"],
		SubtopicID: fields["subtopic_id"],
		Difficulty: domain.Difficulty(fields["difficulty"]),
		Label:      fields["label"],
		Completed:  fields["completed"] == "1",
	}
	if err := json.Unmarshal([]byte(fields["questions"]), &session.Questions); err != nil {
		return domain.Session{}, domain.Persistence("decode snapshot", err)
	}
	var err error
	if session.CreatedAt, err = millis(fields["created_at"]); err != nil {
		return domain.Session{}, domain.Persistence("decode created_at", err)
	}
	if session.ExpiresAt, err = millis(fields["expires_at"]); err != nil {
		return domain.Session{}, domain.Persistence("decode expires_at", err)
	}
	if raw := fields["completed_at"]; raw != "" {
		at, err := millis(raw)
		if err != nil {
			return domain.Session{}, domain.Persistence("decode completed_at", err)
		}
		session.CompletedAt = &at
	}
	return session, nil
}

func millis(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
