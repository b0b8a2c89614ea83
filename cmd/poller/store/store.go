// Package store selects the window persistence backend for the poller.
//
//   - file: the window is a JSON document on local disk (default). The syncer
//     can read it directly when both run on the same host.
//   - redis: the window is a JSON document under one Redis key, for setups
//     where poller and syncer do not share a filesystem.
//
// Initialization is fail-fast: a Redis backend that does not answer PING at
// startup is reported as an error and the poller refuses to start.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/rulesync/cmd/poller/config"
	"github.com/HatiCode/rulesync/pkg/window"
)

// New returns the configured window.Store and a function releasing it.
func New(cfg *config.Config, logger *slog.Logger) (window.Store, func() error, error) {
	switch cfg.Storage {
	case "redis":
		// Expire the key once it can no longer contribute to any aggregate.
		ttl := 2 * cfg.Window
		logger.Info("initializing redis window storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"key", cfg.RedisKey,
			"ttl", ttl,
		)
		rs, err := window.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey, ttl, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("redis health check: %w", err)
		}
		logger.Info("redis window storage initialized")
		return rs, rs.Close, nil

	case "file", "":
		logger.Info("initializing file window storage", "path", cfg.HistoryPath)
		return window.NewFileStore(cfg.HistoryPath, logger), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("invalid storage type %q", cfg.Storage)
	}
}
