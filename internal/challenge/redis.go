package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore хранит челленджи в Redis, что позволяет нескольким экземплярам
// сервиса обслуживать одну церемонию. TTL страхует от брошенных церемоний.
type RedisStore struct {
	db  *redis.Client
	ttl time.Duration
}

// NewRedisStore создает хранилище поверх готового клиента Redis.
func NewRedisStore(db *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{db: db, ttl: ttl}
}

func challengeKey(userUID string) string {
	return "challenge:" + userUID
}

// Put сохраняет челлендж с TTL, перезаписывая существующий.
func (s *RedisStore) Put(ctx context.Context, userUID string, data []byte) error {
	const op = "challenge.RedisStore.Put"
	if err := s.db.Set(ctx, challengeKey(userUID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TakeOnce атомарно читает и удаляет челлендж через GETDEL.
func (s *RedisStore) TakeOnce(ctx context.Context, userUID string) ([]byte, error) {
	const op = "challenge.RedisStore.TakeOnce"
	data, err := s.db.GetDel(ctx, challengeKey(userUID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}
