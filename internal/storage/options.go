package storage

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	filePath    string
	redisClient *redis.Client
	redisTTL    time.Duration
	sessionID   string
}

// WithFilePath sets the state file used by the file store.
func WithFilePath(path string) StoreOption {
	return func(c *storeConfig) {
		c.filePath = path
	}
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the TTL for Redis keys. Every read and write refreshes it.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// WithSessionID scopes the Redis keys to one session.
func WithSessionID(id string) StoreOption {
	return func(c *storeConfig) {
		c.sessionID = id
	}
}
