package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/HatiCode/rulesync/cmd/poller/metrics"
	"github.com/HatiCode/rulesync/pkg/aggregate"
	"github.com/HatiCode/rulesync/pkg/client"
	"github.com/HatiCode/rulesync/pkg/rulesync"
	"github.com/HatiCode/rulesync/pkg/telemetry"
	"github.com/HatiCode/rulesync/pkg/window"
)

// Syncer runs one rule sync cycle. Satisfied by *rulesync.Controller.
type Syncer interface {
	Sync(ctx context.Context) (rulesync.Result, error)
}

// Poller orchestrates the poll loop: collect → append → prune → persist → aggregate → publish.
type Poller struct {
	adapter        telemetry.Adapter
	store          window.Store
	window         time.Duration
	collectTimeout time.Duration
	rankPath       string
	summaryPath    string
	syncer         Syncer
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time

	mu        sync.RWMutex
	latest    client.ProtocolsResponse
	hasLatest bool
}

// Options are the Poller's optional collaborators and outputs.
type Options struct {
	RankPath       string
	SummaryPath    string
	CollectTimeout time.Duration
	// Syncer, when set, runs after every successful tick.
	Syncer  Syncer
	Metrics *metrics.Metrics
}

// New creates a new Poller.
func New(adapter telemetry.Adapter, store window.Store, windowDur time.Duration, opts Options, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if windowDur <= 0 {
		windowDur = window.DefaultDuration
	}
	if opts.CollectTimeout <= 0 {
		opts.CollectTimeout = 10 * time.Second
	}

	return &Poller{
		adapter:        adapter,
		store:          store,
		window:         windowDur,
		collectTimeout: opts.CollectTimeout,
		rankPath:       opts.RankPath,
		summaryPath:    opts.SummaryPath,
		syncer:         opts.Syncer,
		metrics:        opts.Metrics,
		logger:         logger,
		now:            time.Now,
	}
}

// Run executes the poll loop at regular intervals.
// Blocks until context is canceled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("starting poll loop", "interval", interval, "window", p.window)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := p.Tick(ctx); err != nil {
		p.logger.Error("poll tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				p.logger.Error("poll tick failed", "error", err)
			}
		}
	}
}

// Tick performs one poll cycle.
// Exported for testing purposes.
func (p *Poller) Tick(ctx context.Context) error {
	start := p.now()
	now := start.UTC()

	obs, collectDuration := p.collect(ctx)

	w, err := p.store.Load(ctx)
	if err != nil {
		// Saving now would replace the persisted window with a single snapshot.
		return fmt.Errorf("load window: %w", err)
	}

	w = window.Append(w, window.Snapshot{Timestamp: now, Protocols: obs})
	w = window.Prune(w, now, p.window)

	if err := p.store.Save(ctx, w); err != nil {
		return fmt.Errorf("save window: %w", err)
	}

	ranking := aggregate.Aggregate(w)

	if p.rankPath != "" {
		if err := aggregate.WriteRankFile(p.rankPath, ranking); err != nil {
			return fmt.Errorf("write rank file: %w", err)
		}
	}
	if p.summaryPath != "" {
		if err := aggregate.WriteSummary(p.summaryPath, aggregate.NewSummary(now, p.window, ranking)); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	p.publish(now, ranking)

	total := p.now().Sub(start)
	if p.metrics != nil {
		p.metrics.SetWindow(len(w), len(ranking))
		p.metrics.RecordTick(total.Seconds(), now)
	}

	p.logger.Info("poll tick complete",
		"observations", len(obs),
		"snapshots", len(w),
		"oldest", w.Oldest(),
		"protocols", len(ranking),
		"collect_ms", collectDuration.Milliseconds(),
		"total_ms", total.Milliseconds(),
	)

	if p.syncer != nil {
		// Sync logs its own outcome; a failed cycle does not fail the poll.
		_, _ = p.syncer.Sync(ctx)
	}

	return nil
}

// collect fetches one observation set. Any adapter failure is treated as
// zero observations so the window keeps advancing.
func (p *Poller) collect(ctx context.Context) ([]window.Observation, time.Duration) {
	start := p.now()

	cctx, cancel := context.WithTimeout(ctx, p.collectTimeout)
	defer cancel()

	obs, err := p.adapter.Collect(cctx)
	duration := p.now().Sub(start)

	if p.metrics != nil {
		p.metrics.ObserveCollect(duration.Seconds())
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordCollectError()
		}
		p.logger.Warn("telemetry fetch failed, recording empty snapshot",
			"adapter", p.adapter.Name(),
			"error", err,
		)
		return nil, duration
	}

	p.logger.Debug("collected protocol counters",
		"adapter", p.adapter.Name(),
		"protocols", len(obs),
		"duration_ms", duration.Milliseconds(),
	)
	return obs, duration
}

func (p *Poller) publish(at time.Time, ranking []aggregate.Protocol) {
	if ranking == nil {
		ranking = []aggregate.Protocol{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = client.ProtocolsResponse{
		GeneratedAt:   at,
		WindowMinutes: int(p.window / time.Minute),
		Protocols:     ranking,
	}
	p.hasLatest = true
}

// Latest returns the aggregate published by the last successful tick.
func (p *Poller) Latest() (client.ProtocolsResponse, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.hasLatest
}
