package storage

import (
	"time"
)

// StoreType represents the type of session store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

const defaultRedisTTL = 24 * time.Hour

// NewStore creates a Store of the given type. The file store requires
// WithFilePath; the redis store requires WithRedisClient and WithSessionID.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil

	case StoreTypeFile:
		if cfg.filePath == "" {
			return nil, ErrInvalidConfig.Msg("file store requires a path")
		}
		return NewFileStore(cfg.filePath), nil

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig.Msg("redis store requires a client")
		}
		if cfg.sessionID == "" {
			return nil, ErrInvalidConfig.Msg("redis store requires a session id")
		}
		ttl := cfg.redisTTL
		if ttl <= 0 {
			ttl = defaultRedisTTL
		}
		return NewRedisStore(cfg.redisClient, cfg.sessionID, ttl), nil

	default:
		return nil, ErrInvalidStoreType.Msg("unknown store type: " + string(storeType))
	}
}
