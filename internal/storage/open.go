package storage

import (
	"context"
	"time"

	"github.com/adverant/nexus/redaction-worker/internal/config"
	"github.com/adverant/nexus/redaction-worker/internal/logging"
)

// Open connects the Redis record store and, when configured, PostgreSQL.
// A Redis outage degrades to the in-memory store; a database that cannot
// be reached or migrated is an error.
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*StorageManager, error) {
	var store DocumentStore
	redisStore, err := NewRedisStore(cfg.RedisURL, time.Duration(cfg.DocumentTTL)*time.Second)
	if err != nil {
		logger.Warn("Redis record store unavailable, using memory store", "error", err)
		store = NewMemoryStore()
	} else {
		store = redisStore
	}

	if cfg.DatabaseURL == "" {
		return NewStorageManager(store, nil), nil
	}

	pg, err := NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		closeStore(store)
		return nil, err
	}
	logger.Info("PostgreSQL connected", "openConnections", pg.GetStats().OpenConnections)
	return NewStorageManager(store, pg), nil
}

func closeStore(store DocumentStore) {
	if c, ok := store.(interface{ Close() error }); ok {
		c.Close()
	}
}
