package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/domain/repository"
)

// RedisSessionStore keeps each symbol's state as a JSON string. SET replaces
// the value atomically.
type RedisSessionStore struct {
	cli    redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore stores under <prefix>:session:<SYMBOL>. A zero ttl keeps keys forever.
func NewRedisSessionStore(cli redis.Cmdable, prefix string, ttl time.Duration) *RedisSessionStore {
	if prefix == "" {
		prefix = "marketcore"
	}
	return &RedisSessionStore{cli: cli, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) Key(symbol string) string {
	return s.prefix + ":session:" + storeKey(symbol)
}

func (s *RedisSessionStore) Load(ctx context.Context, symbol string) (models.SessionState, error) {
	b, err := s.cli.Get(ctx, s.Key(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.SessionState{}, models.ErrStateNotFound
		}
		return models.SessionState{}, fmt.Errorf("redis get session state: %w", err)
	}
	return decodeState(b)
}

func (s *RedisSessionStore) Save(ctx context.Context, symbol string, st models.SessionState) error {
	data, err := encodeState(st)
	if err != nil {
		return err
	}
	if err := s.cli.Set(ctx, s.Key(symbol), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session state: %w", err)
	}
	return nil
}
