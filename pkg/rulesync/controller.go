// Package rulesync reconciles the IDS disable list with the protocols that are
// currently active on the monitored link.
//
// A Controller runs one cycle per call to Sync: it discovers the rule
// categories, loads the whitelist, maps active protocols onto categories,
// renders the disable list, and replaces the on-disk artifact only when its
// checksum differs. The detection engine is reloaded only after a write.
package rulesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/rulesync/pkg/atomicfile"
	"github.com/HatiCode/rulesync/pkg/category"
	"github.com/HatiCode/rulesync/pkg/policy"
	"github.com/HatiCode/rulesync/pkg/reload"
)

var (
	// ErrNoCategories aborts a cycle when the rule namespace is missing or empty.
	ErrNoCategories = errors.New("no rule categories found")
	// ErrNoActiveProtocols aborts a cycle when there is nothing to reconcile.
	ErrNoActiveProtocols = errors.New("no active protocols")
	// ErrReloadFailed marks a cycle whose artifact was written but not loaded.
	ErrReloadFailed = errors.New("detection engine reload failed")
)

const (
	DefaultIOTimeout     = 10 * time.Second
	DefaultReloadTimeout = 30 * time.Second
)

// Config holds everything a Controller needs to know about its environment.
type Config struct {
	// RuleDir is the directory whose *.rules file names define the categories.
	RuleDir string
	// WhitelistPath lists categories that are never disabled. Optional.
	WhitelistPath string
	// ArtifactPath is the disable list read by the engine (e.g. disable.conf).
	ArtifactPath string
	// IOTimeout bounds each filesystem or source read.
	IOTimeout time.Duration
	// ReloadTimeout bounds the reload trigger.
	ReloadTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.IOTimeout <= 0 {
		c.IOTimeout = DefaultIOTimeout
	}
	if c.ReloadTimeout <= 0 {
		c.ReloadTimeout = DefaultReloadTimeout
	}
}

// Validate reports missing required fields.
func (c Config) Validate() error {
	if c.RuleDir == "" {
		return errors.New("rule directory is required")
	}
	if c.ArtifactPath == "" {
		return errors.New("artifact path is required")
	}
	return nil
}

// Recorder receives cycle telemetry. A nil Recorder is allowed.
type Recorder interface {
	RecordCycle(state State, seconds float64)
	SetCategories(discovered, enabled, disabled int)
	RecordReload(ok bool)
}

// Controller runs sync cycles. Calls to Sync and Reload are serialized.
type Controller struct {
	cfg      Config
	source   ActiveSource
	reloader reload.Reloader
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	last    Result
	hasLast bool
}

// New creates a Controller.
func New(cfg Config, source ActiveSource, reloader reload.Reloader, recorder Recorder, logger *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("active protocol source is required")
	}
	if reloader == nil {
		reloader = reload.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Controller{
		cfg:      cfg,
		source:   source,
		reloader: reloader,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Last returns the result of the most recent cycle.
func (c *Controller) Last() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Sync runs one reconciliation cycle. The returned Result always describes
// how far the cycle got; the error is non-nil for every terminal state other
// than StateUnchanged and StateWrittenAndReloaded.
func (c *Controller) Sync(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{
		CycleID:   uuid.NewString(),
		State:     StateStart,
		StartedAt: c.now().UTC(),
	}
	log := c.logger.With("cycle_id", res.CycleID)

	err := c.run(ctx, log, &res)
	if err != nil {
		res.Error = err.Error()
	}
	res.Duration = c.now().Sub(res.StartedAt)

	if c.recorder != nil {
		c.recorder.RecordCycle(res.State, res.Duration.Seconds())
	}
	c.last, c.hasLast = res, true

	log.Info("sync cycle complete",
		"state", res.State,
		"disabled", len(res.Disabled),
		"written", res.Written,
		"reloaded", res.Reloaded,
		"total_ms", res.Duration.Milliseconds(),
	)
	return res, err
}

func (c *Controller) run(ctx context.Context, log *slog.Logger, res *Result) error {
	active, err := bounded(ctx, c.cfg.IOTimeout, c.source.ActiveProtocols)
	if err != nil {
		log.Warn("active protocol source failed; treating as no activity",
			"source", c.source.Name(), "error", err)
		active = nil
	}
	res.Active = active
	log.Debug("read active protocols", "source", c.source.Name(), "protocols", active)

	cats, err := bounded(ctx, c.cfg.IOTimeout, func(ctx context.Context) (category.Set, error) {
		return category.Discover(ctx, c.cfg.RuleDir)
	})
	if err != nil || len(cats) == 0 {
		res.State = StateAbortedNoCategories
		log.Error("no rule categories found; aborting", "rule_dir", c.cfg.RuleDir, "error", err)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoCategories, err)
		}
		return fmt.Errorf("%w in %s", ErrNoCategories, c.cfg.RuleDir)
	}
	res.Categories = cats.Sorted()
	res.State = StateCategoriesDiscovered
	log.Info("discovered rule categories", "count", len(cats), "categories", res.Categories)

	whitelist, err := bounded(ctx, c.cfg.IOTimeout, func(context.Context) (category.Set, error) {
		return policy.LoadWhitelist(c.cfg.WhitelistPath)
	})
	if err != nil {
		res.State = StateFailed
		log.Error("failed to load whitelist; aborting", "path", c.cfg.WhitelistPath, "error", err)
		return fmt.Errorf("whitelist: %w", err)
	}
	res.Whitelist = whitelist.Sorted()
	res.State = StateWhitelistLoaded
	if len(whitelist) == 0 {
		log.Info("no whitelist entries", "path", c.cfg.WhitelistPath)
	} else {
		log.Info("loaded whitelist", "categories", res.Whitelist)
	}

	if len(active) == 0 {
		res.State = StateAbortedNoActive
		log.Warn("no active protocols found; skipping update")
		return ErrNoActiveProtocols
	}

	resolutions := category.MapDetailed(active, cats)
	enabled := make(category.Set)
	for _, r := range resolutions {
		if r.Rule == category.RuleNone {
			log.Debug("protocol not mapped", "protocol", r.Protocol)
			continue
		}
		enabled.Add(r.Category)
		log.Debug("protocol mapped", "protocol", r.Protocol, "category", r.Category, "rule", r.Rule)
	}
	res.Enabled = enabled.Sorted()
	res.State = StateActiveMapped
	log.Info("mapped active protocols to categories", "categories", res.Enabled)

	disabled := policy.DisabledSet(cats, enabled, whitelist)
	artifact := policy.Render(disabled)
	res.Disabled = disabled.Sorted()
	res.Checksum = artifact.Checksum
	res.State = StateArtifactBuilt
	if c.recorder != nil {
		c.recorder.SetCategories(len(cats), len(enabled), len(disabled))
	}

	type current struct {
		sum    string
		exists bool
	}
	cur, err := bounded(ctx, c.cfg.IOTimeout, func(context.Context) (current, error) {
		sum, exists, err := policy.FileChecksum(c.cfg.ArtifactPath)
		return current{sum, exists}, err
	})
	if err != nil {
		res.State = StateFailed
		log.Error("failed to read current disable list", "path", c.cfg.ArtifactPath, "error", err)
		return fmt.Errorf("read artifact: %w", err)
	}
	if cur.exists && cur.sum == artifact.Checksum {
		res.State = StateUnchanged
		log.Info("disable list unchanged; engine not reloaded", "path", c.cfg.ArtifactPath)
		return nil
	}

	if err := ctx.Err(); err != nil {
		res.State = StateFailed
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := atomicfile.WriteFile(c.cfg.ArtifactPath, artifact.Content, 0o644); err != nil {
		res.State = StateFailed
		log.Error("failed to write disable list", "path", c.cfg.ArtifactPath, "error", err)
		return fmt.Errorf("write artifact: %w", err)
	}
	res.Written = true
	log.Info("updated disable list", "path", c.cfg.ArtifactPath, "checksum", artifact.Checksum, "disabled", res.Disabled)

	if err := c.reloadLocked(ctx); err != nil {
		res.State = StateWrittenReloadFailed
		log.Error("failed to reload detection engine; new disable list stays in place until the engine is reloaded",
			"reloader", c.reloader.Name(), "error", err)
		return fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	res.Reloaded = true
	res.State = StateWrittenAndReloaded
	log.Info("detection engine reloaded", "reloader", c.reloader.Name())
	return nil
}

// Reload triggers the detection engine reload outside of a cycle, for
// operators recovering from a StateWrittenReloadFailed cycle.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reloadLocked(ctx); err != nil {
		c.logger.Error("manual reload failed", "reloader", c.reloader.Name(), "error", err)
		return fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	c.logger.Info("detection engine reloaded on request", "reloader", c.reloader.Name())
	return nil
}

func (c *Controller) reloadLocked(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, c.cfg.ReloadTimeout)
	defer cancel()

	err := c.reloader.Reload(rctx)
	if c.recorder != nil {
		c.recorder.RecordReload(err == nil)
	}
	return err
}

// bounded runs fn with a deadline of d and returns as soon as either fn
// finishes or the deadline passes. fn keeps running in the background after a
// timeout, so it must not have side effects the caller depends on.
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
