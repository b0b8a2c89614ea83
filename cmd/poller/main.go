// Package main implements the rulesync poller.
// The poller samples per-protocol traffic counters, keeps a rolling window of
// them, publishes the aggregated ranking and can drive a rule sync cycle
// after every poll.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/rulesync/cmd/poller/config"
	"github.com/HatiCode/rulesync/cmd/poller/logger"
	"github.com/HatiCode/rulesync/cmd/poller/metrics"
	"github.com/HatiCode/rulesync/cmd/poller/router"
	"github.com/HatiCode/rulesync/cmd/poller/store"
	"github.com/HatiCode/rulesync/pkg/httpx"
	"github.com/HatiCode/rulesync/pkg/reload"
	"github.com/HatiCode/rulesync/pkg/rulesync"
	"github.com/HatiCode/rulesync/pkg/telemetry"
)

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting rulesync poller",
		"version", "v0.1.0",
		"ntop_url", cfg.NtopURL,
		"ifid", cfg.InterfaceID,
		"window", cfg.Window,
		"storage", cfg.Storage,
	)

	adapter := &telemetry.NtopngAdapter{
		BaseURL:     cfg.NtopURL,
		User:        cfg.NtopUser,
		Password:    cfg.NtopPassword,
		InterfaceID: cfg.InterfaceID,
		HTTPClient:  &http.Client{Timeout: cfg.FetchTimeout},
	}

	windowStore, closeStore, err := store.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize window storage", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	opts := Options{
		RankPath:       cfg.RankPath,
		SummaryPath:    cfg.SummaryPath,
		CollectTimeout: cfg.FetchTimeout,
		Metrics:        metrics.New(nil),
	}

	if cfg.SyncAfterPoll {
		ctrl, err := rulesync.New(rulesync.Config{
			RuleDir:       cfg.RuleDir,
			WhitelistPath: cfg.WhitelistPath,
			ArtifactPath:  cfg.DisablePath,
		}, rulesync.RankFileSource{Path: cfg.RankPath}, reload.Parse(cfg.ReloadCommand), nil, logger)
		if err != nil {
			logger.Error("invalid sync configuration", "error", err)
			os.Exit(1)
		}
		opts.Syncer = ctrl
		logger.Info("rule sync after poll enabled", "rule_dir", cfg.RuleDir, "disable_file", cfg.DisablePath)
	}

	p := New(adapter, windowStore, cfg.Window, opts, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Once {
		if err := p.Tick(ctx); err != nil {
			logger.Error("poll failed", "error", err)
			closeStore()
			os.Exit(1)
		}
		return
	}

	staleAfter := 2 * cfg.Interval
	mux := router.SetupRoutes(p, staleAfter, logger)
	httpServer := httpx.NewServer(cfg.Listen, httpx.LoggingMiddleware(logger)(mux), logger)

	go func() {
		if err := p.Run(ctx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("poll loop failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	stop()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
