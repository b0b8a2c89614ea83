package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/HatiCode/rulesync/cmd/syncer/config"
	"github.com/HatiCode/rulesync/cmd/syncer/control"
	"github.com/HatiCode/rulesync/cmd/syncer/metrics"
	"github.com/HatiCode/rulesync/pkg/reload"
	"github.com/HatiCode/rulesync/pkg/rulesync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSyncer struct {
	calls atomic.Int32
	state rulesync.State
}

func (s *countingSyncer) Sync(ctx context.Context) (rulesync.Result, error) {
	s.calls.Add(1)
	return rulesync.Result{State: s.state}, nil
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		state rulesync.State
		want  int
	}{
		{rulesync.StateUnchanged, 0},
		{rulesync.StateWrittenAndReloaded, 0},
		{rulesync.StateAbortedNoActive, 0},
		{rulesync.StateWrittenReloadFailed, 1},
		{rulesync.StateAbortedNoCategories, 1},
		{rulesync.StateFailed, 1},
		{rulesync.State(""), 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.state))
		})
	}
}

func TestRunner_OnceWritesTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordCycle(rulesync.StateUnchanged, 0.1)

	path := filepath.Join(t.TempDir(), "rulesync.prom")
	s := &countingSyncer{state: rulesync.StateUnchanged}
	r := NewRunner(s, path, reg, testLogger())

	res, err := r.Once(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rulesync.StateUnchanged, res.State)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rulesync_sync_cycles_total")
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	s := &countingSyncer{state: rulesync.StateUnchanged}
	r := NewRunner(s, "", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return s.calls.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "Run() error = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		wantName string
	}{
		{"rankfile", func(*config.Config) {}, "rankfile"},
		{"poller", func(c *config.Config) { c.Source = "poller" }, "poller"},
		{"window file", func(c *config.Config) {
			c.Source = "window"
			c.HistoryPath = filepath.Join(t.TempDir(), "history.json")
		}, "window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(cfg)

			src, closeFn, err := newSource(cfg, testLogger())
			require.NoError(t, err)
			defer closeFn()
			assert.Equal(t, tt.wantName, src.Name())
		})
	}
}

func TestNewSource_Errors(t *testing.T) {
	cfg := config.Defaults()
	cfg.Source = "window"
	cfg.Storage = "redis"
	cfg.RedisAddr = "127.0.0.1:1"

	_, _, err := newSource(cfg, testLogger())
	assert.Error(t, err)

	cfg = config.Defaults()
	cfg.Source = "kafka"
	_, _, err = newSource(cfg, testLogger())
	assert.Error(t, err)
}

// Drives a real controller through the control service the way
// `syncer -trigger sync` does.
func TestTrigger_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	ruleDir := filepath.Join(dir, "rules")
	require.NoError(t, os.MkdirAll(ruleDir, 0o755))
	for _, f := range []string{"dns.rules", "tls-events.rules", "ftp.rules", "smb.rules"} {
		require.NoError(t, os.WriteFile(filepath.Join(ruleDir, f), nil, 0o644))
	}
	rankPath := filepath.Join(dir, "protocols.txt")
	require.NoError(t, os.WriteFile(rankPath, []byte("TLS\nDNS\n"), 0o644))
	artifact := filepath.Join(dir, "disable.conf")

	ctrl, err := rulesync.New(rulesync.Config{
		RuleDir:      ruleDir,
		ArtifactPath: artifact,
	}, rulesync.RankFileSource{Path: rankPath}, reload.Noop{}, nil, testLogger())
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	control.RegisterControlServer(srv, control.NewService(ctrl, testLogger()))
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := trigger(ctx, lis.Addr().String(), "sync")
	require.NoError(t, err)
	assert.Equal(t, "WRITTEN_AND_RELOADED", out.AsMap()["state"])
	assert.Equal(t, 0, triggerExitCode("sync", out))

	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, "re:ftp\nre:smb\n", string(data))

	out, err = trigger(ctx, lis.Addr().String(), "sync")
	require.NoError(t, err)
	assert.Equal(t, "UNCHANGED", out.AsMap()["state"])

	out, err = trigger(ctx, lis.Addr().String(), "reload")
	require.NoError(t, err)
	assert.Equal(t, 0, triggerExitCode("reload", out))

	_, err = trigger(ctx, lis.Addr().String(), "restart")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown trigger"))
}
