package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lako-services/lako-web/internal/history"
	"github.com/lako-services/lako-web/internal/platform/cache"
	"github.com/lako-services/lako-web/internal/platform/db"
)

const historyKeyPrefix = "lako:"

// OpenHistoryStore connects the configured history backend. The returned
// func releases its connections.
func OpenHistoryStore(ctx context.Context, cfg *Config, logger *slog.Logger) (history.Store, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.HistoryBackend {
	case HistoryRedis:
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return history.NewRedisStore(client, historyKeyPrefix, 0), func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}, nil
	case HistoryPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return history.NewPostgresStore(pool), pool.Close, nil
	case HistoryFile:
		store, err := history.NewFileStore(cfg.HistoryDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case HistoryMemory:
		return history.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}
