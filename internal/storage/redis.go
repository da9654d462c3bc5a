package storage

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sessionKeyPrefix = "apiaccess:session:"

// RedisStore implements Store with one redis hash per session.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore creates a store keeping the slots of sessionID in redis.
func NewRedisStore(client *redis.Client, sessionID string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{
		client: client,
		key:    sessionKeyPrefix + sessionID,
		ttl:    ttl,
	}
}

// Get implements Store. Reads refresh the session TTL.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ErrStorage.MsgErr("redis read failed", err)
	}
	if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("failed to refresh session ttl")
	}
	return val, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, key, value)
		pipe.Expire(ctx, s.key, s.ttl)
		return nil
	})
	if err != nil {
		return ErrStorage.MsgErr("redis write failed", err)
	}
	return nil
}

// Remove implements Store.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.key, key).Err(); err != nil {
		return ErrStorage.MsgErr("redis delete failed", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// ConnectRedis parses a redis URL and pings the server, retrying with
// backoff before giving up.
func ConnectRedis(ctx context.Context, url string, attempts uint) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, ErrInvalidConfig.MsgErr("invalid redis url", err)
	}
	client := redis.NewClient(opts)
	if attempts == 0 {
		attempts = 1
	}

	err = retry.Do(func() error {
		return client.Ping(ctx).Err()
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Msg("redis ping failed")
		}))
	if err != nil {
		client.Close()
		return nil, ErrStorage.MsgErr("unable to reach redis", err)
	}
	return client, nil
}
