package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"timetrigger/internal/task"
	logx "timetrigger/pkg/logx"
)

// redisStore keeps done-markers as "<prefix><task id>" keys.
// Task files are never rewritten.
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return newRedisStore(client, cfg.Redis.Prefix, log), nil
}

func newRedisStore(client *redis.Client, prefix string, log logx.Logger) *redisStore {
	if prefix == "" {
		prefix = "timetrigger:done:"
	}
	return &redisStore{client: client, prefix: prefix, log: log}
}

func (s *redisStore) key(id string) string { return s.prefix + id }

func (s *redisStore) IsDone(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) MarkDone(ctx context.Context, e task.Entry, at time.Time) error {
	// No expiry: markers are the only record that the task fired.
	if err := s.client.SetNX(ctx, s.key(e.ID), at.Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, e.ID, err)
	}
	return nil
}

func (s *redisStore) Commit(ctx context.Context, fired []task.Entry) error { return nil }

func (s *redisStore) Close() error { return s.client.Close() }
