package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/eleven-am/voice-stt/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	sessionTTL = 24 * time.Hour
	metricsTTL = 7 * 24 * time.Hour
	activeSet  = "sessions:active"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = shared.NewID("sess_")
	}
	now := time.Now().UTC()
	sess.Status = StatusActive
	sess.StartedAt = now
	sess.LastActiveAt = now

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, sess.RedisKey(), data, sessionTTL)
	pipe.SAdd(ctx, activeSet, sess.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	sess.LastActiveAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sess.RedisKey(), data, sessionTTL).Err()
}

// RecordUtterance bumps the finalized utterance count of a session.
func (s *Store) RecordUtterance(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	sess.Utterances++
	return s.UpdateSession(ctx, sess)
}

func (s *Store) EndSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	sess.Status = StatusEnded
	sess.EndedAt = &now
	if err := s.UpdateSession(ctx, sess); err != nil {
		return err
	}
	return s.redis.SRem(ctx, activeSet, id).Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, activeSet, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetActiveSessions(ctx context.Context) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, activeSet).Result()
	if err != nil {
		return nil, err
	}

	var sessions []*Session
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			s.redis.SRem(ctx, activeSet, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.Status == StatusActive {
			sessions = append(sessions, sess)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (s *Store) IncrementMetric(ctx context.Context, field string, value int64) error {
	now := time.Now().UTC()
	key := MetricsRedisKey(now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, field, value)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetMetrics(ctx context.Context, hours int) ([]*Metrics, error) {
	now := time.Now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		key := MetricsRedisKey(t.Format("2006-01-02"), t.Hour())

		data, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		metrics = append(metrics, &Metrics{
			Date:          t.Format("2006-01-02"),
			Hour:          t.Hour(),
			Sessions:      parseCount(data, MetricSessions),
			InterimJobs:   parseCount(data, MetricInterimJobs),
			FinalJobs:     parseCount(data, MetricFinalJobs),
			Transcripts:   parseCount(data, MetricTranscripts),
			Finals:        parseCount(data, MetricFinals),
			Keepalives:    parseCount(data, MetricKeepalives),
			FinalTimeouts: parseCount(data, MetricFinalTimeouts),
		})
	}

	return metrics, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func parseCount(data map[string]string, field string) int64 {
	v, _ := strconv.ParseInt(data[field], 10, 64)
	return v
}
