package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/utils"
)

// RedisStore persists readings and alerts in a Redis-compatible server.
//
// Layout:
//
//	readings:<sensor>   sorted set, score = unix nanos, member = reading JSON
//	alert:<id>          alert JSON
//	alerts:by_time      sorted set, score = triggered_at unix nanos, member = id
//	alerts:active       set of unresolved alert ids
type RedisStore struct {
	client       *redis.Client
	readingTTL   time.Duration
	maxRetries   int
	retryBackoff time.Duration
}

// RedisConfig holds connection and retention parameters.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	ReadingTTL   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewRedisStore connects and pings the target so misconfiguration fails fast.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     50,
		MinIdleConns: 5,
		MaxRetries:   cfg.MaxRetries,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, utils.NewAppError("repo.NewRedisStore", utils.KindPersistence, "connect to redis", err)
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}

	return &RedisStore{
		client:       client,
		readingTTL:   cfg.ReadingTTL,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
	}, nil
}

func readingKey(sensorID string) string { return "readings:" + sensorID }

func alertKey(id string) string { return "alert:" + id }

// withRetry runs fn up to the configured attempt budget with exponential backoff.
func (s *RedisStore) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt < s.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryBackoff << attempt):
			}
		}
	}
	return lastErr
}

// AppendReading appends one accepted reading to the sensor's log.
func (s *RedisStore) AppendReading(ctx context.Context, reading models.Reading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	key := readingKey(reading.SensorID)
	score := float64(reading.Timestamp.UnixNano())

	err = s.withRetry(ctx, func() error {
		pipe := s.client.Pipeline()
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: payload})
		if s.readingTTL > 0 {
			pipe.Expire(ctx, key, s.readingTTL)
		}
		_, execErr := pipe.Exec(ctx)
		return execErr
	})
	if err != nil {
		return utils.NewAppError("repo.AppendReading", utils.KindPersistence, "append reading", err)
	}
	return nil
}

// History returns readings for a sensor within [from, to], oldest first.
func (s *RedisStore) History(ctx context.Context, sensorID string, from, to time.Time) ([]models.Reading, error) {
	var members []string
	err := s.withRetry(ctx, func() error {
		var zerr error
		members, zerr = s.client.ZRangeByScore(ctx, readingKey(sensorID), &redis.ZRangeBy{
			Min: strconv.FormatInt(from.UnixNano(), 10),
			Max: strconv.FormatInt(to.UnixNano(), 10),
		}).Result()
		return zerr
	})
	if err != nil {
		return nil, utils.NewAppError("repo.History", utils.KindPersistence, "range readings", err)
	}

	readings := make([]models.Reading, 0, len(members))
	for _, member := range members {
		var r models.Reading
		if err := json.Unmarshal([]byte(member), &r); err != nil {
			return nil, fmt.Errorf("unmarshal reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// SaveAlert upserts the alert record and maintains the time and active indexes.
func (s *RedisStore) SaveAlert(ctx context.Context, event models.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	err = s.withRetry(ctx, func() error {
		pipe := s.client.Pipeline()
		pipe.Set(ctx, alertKey(event.ID), payload, 0)
		pipe.ZAdd(ctx, "alerts:by_time", redis.Z{
			Score:  float64(event.TriggeredAt.UnixNano()),
			Member: event.ID,
		})
		if event.Resolved {
			pipe.SRem(ctx, "alerts:active", event.ID)
		} else {
			pipe.SAdd(ctx, "alerts:active", event.ID)
		}
		_, execErr := pipe.Exec(ctx)
		return execErr
	})
	if err != nil {
		return utils.NewAppError("repo.SaveAlert", utils.KindPersistence, "save alert", err)
	}
	return nil
}

// GetAlert fetches a single alert record by id.
func (s *RedisStore) GetAlert(ctx context.Context, id string) (models.AlertEvent, error) {
	var payload string
	err := s.withRetry(ctx, func() error {
		var gerr error
		payload, gerr = s.client.Get(ctx, alertKey(id)).Result()
		if gerr == redis.Nil {
			return ErrNotFound
		}
		return gerr
	})
	if err != nil {
		if err == ErrNotFound {
			return models.AlertEvent{}, ErrNotFound
		}
		return models.AlertEvent{}, utils.NewAppError("repo.GetAlert", utils.KindPersistence, "get alert", err)
	}

	var event models.AlertEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return models.AlertEvent{}, fmt.Errorf("unmarshal alert: %w", err)
	}
	return event, nil
}

// ListActive returns all unresolved alerts.
func (s *RedisStore) ListActive(ctx context.Context) ([]models.AlertEvent, error) {
	var ids []string
	err := s.withRetry(ctx, func() error {
		var serr error
		ids, serr = s.client.SMembers(ctx, "alerts:active").Result()
		return serr
	})
	if err != nil {
		return nil, utils.NewAppError("repo.ListActive", utils.KindPersistence, "list active alerts", err)
	}

	events := make([]models.AlertEvent, 0, len(ids))
	for _, id := range ids {
		event, err := s.GetAlert(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// AlertHistory returns alerts triggered within [from, to], oldest first.
func (s *RedisStore) AlertHistory(ctx context.Context, from, to time.Time) ([]models.AlertEvent, error) {
	var ids []string
	err := s.withRetry(ctx, func() error {
		var zerr error
		ids, zerr = s.client.ZRangeByScore(ctx, "alerts:by_time", &redis.ZRangeBy{
			Min: strconv.FormatInt(from.UnixNano(), 10),
			Max: strconv.FormatInt(to.UnixNano(), 10),
		}).Result()
		return zerr
	})
	if err != nil {
		return nil, utils.NewAppError("repo.AlertHistory", utils.KindPersistence, "range alerts", err)
	}

	events := make([]models.AlertEvent, 0, len(ids))
	for _, id := range ids {
		event, err := s.GetAlert(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Close releases the client's connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
