package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/rulesync/cmd/syncer/config"
	"github.com/HatiCode/rulesync/pkg/client"
	"github.com/HatiCode/rulesync/pkg/rulesync"
	"github.com/HatiCode/rulesync/pkg/window"
)

// Syncer is satisfied by *rulesync.Controller.
type Syncer interface {
	Sync(ctx context.Context) (rulesync.Result, error)
}

// Runner drives the controller once or on an interval and exports metrics
// to a textfile after each cycle when configured.
type Runner struct {
	syncer   Syncer
	textfile string
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

func NewRunner(syncer Syncer, textfile string, gatherer prometheus.Gatherer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{syncer: syncer, textfile: textfile, gatherer: gatherer, logger: logger}
}

// Once runs a single cycle.
func (r *Runner) Once(ctx context.Context) (rulesync.Result, error) {
	res, err := r.syncer.Sync(ctx)
	r.writeTextfile()
	return res, err
}

// Run executes sync cycles at regular intervals.
// Blocks until context is canceled.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	r.logger.Info("starting sync loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_, _ = r.Once(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sync loop stopped")
			return ctx.Err()
		case <-ticker.C:
			_, _ = r.Once(ctx)
		}
	}
}

func (r *Runner) writeTextfile() {
	if r.textfile == "" || r.gatherer == nil {
		return
	}
	if err := prometheus.WriteToTextfile(r.textfile, r.gatherer); err != nil {
		r.logger.Warn("failed to write metrics textfile", "path", r.textfile, "error", err)
	}
}

// exitCode maps the final state of a cron-mode cycle to a process status.
// Having no active protocols is not a failure: there was nothing to do.
func exitCode(state rulesync.State) int {
	if state.OK() || state == rulesync.StateAbortedNoActive {
		return 0
	}
	return 1
}

// newSource builds the configured active protocol source and a function
// releasing its resources.
func newSource(cfg *config.Config, logger *slog.Logger) (rulesync.ActiveSource, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Source {
	case "rankfile":
		return rulesync.RankFileSource{Path: cfg.RankPath}, noop, nil

	case "poller":
		return rulesync.ClientSource{
			Client:      client.NewPollerClientWithTimeout(cfg.PollerURL, cfg.IOTimeout),
			RejectStale: cfg.RejectStale,
		}, noop, nil

	case "window":
		switch cfg.Storage {
		case "redis":
			rs, err := window.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey, 0, logger)
			if err != nil {
				return nil, nil, fmt.Errorf("redis store: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := rs.Ping(ctx); err != nil {
				_ = rs.Close()
				return nil, nil, fmt.Errorf("redis health check: %w", err)
			}
			return rulesync.WindowSource{Store: rs, Duration: cfg.Window}, rs.Close, nil
		default:
			return rulesync.WindowSource{
				Store:    window.NewFileStore(cfg.HistoryPath, logger),
				Duration: cfg.Window,
			}, noop, nil
		}

	default:
		return nil, nil, fmt.Errorf("invalid source %q", cfg.Source)
	}
}
