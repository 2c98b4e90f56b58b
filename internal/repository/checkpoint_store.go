package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"CandleFlow/internal/domain/repository"
)

// RedisCheckpointStore keeps the latest engine snapshot under a single key.
// Only the most recent snapshot matters, so Save overwrites unconditionally.
type RedisCheckpointStore struct {
	client *redis.Client
	key    string
}

func NewRedisCheckpointStore(client *redis.Client, key string) repository.CheckpointStore {
	if key == "" {
		key = "candleflow:checkpoint"
	}
	return &RedisCheckpointStore{client: client, key: key}
}

func (s *RedisCheckpointStore) Save(ctx context.Context, snapshot []byte) error {
	if err := s.client.Set(ctx, s.key, snapshot, 0).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *RedisCheckpointStore) Load(ctx context.Context) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return b, nil
}

func (s *RedisCheckpointStore) Close() error {
	return nil // client owned by di
}
