package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/rulesync/cmd/poller/metrics"
	"github.com/HatiCode/rulesync/pkg/rulesync"
	"github.com/HatiCode/rulesync/pkg/window"
)

type fakeAdapter struct {
	obs []window.Observation
	err error
}

func (f *fakeAdapter) Collect(ctx context.Context) ([]window.Observation, error) {
	return f.obs, f.err
}

func (f *fakeAdapter) Name() string { return "fake" }

type failingStore struct {
	saved atomic.Bool
}

func (s *failingStore) Load(ctx context.Context) (window.Window, error) {
	return window.Window{}, errors.New("connection refused")
}

func (s *failingStore) Save(ctx context.Context, w window.Window) error {
	s.saved.Store(true)
	return nil
}

type countingSyncer struct {
	calls atomic.Int32
}

func (s *countingSyncer) Sync(ctx context.Context) (rulesync.Result, error) {
	s.calls.Add(1)
	return rulesync.Result{State: rulesync.StateUnchanged}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPoller(t *testing.T, adapter *fakeAdapter, opts Options) (*Poller, *window.FileStore, time.Time) {
	t.Helper()
	dir := t.TempDir()
	fs := window.NewFileStore(filepath.Join(dir, "history.json"), testLogger())
	if opts.RankPath == "" {
		opts.RankPath = filepath.Join(dir, "protocols.txt")
	}
	if opts.SummaryPath == "" {
		opts.SummaryPath = filepath.Join(dir, "protocols_full.json")
	}
	p := New(adapter, fs, time.Hour, opts, testLogger())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	return p, fs, now
}

func TestTick_WritesOutputs(t *testing.T) {
	adapter := &fakeAdapter{obs: []window.Observation{
		{Name: "DNS", Count: 10},
		{Name: "TLS", Count: 50},
	}}
	p, fs, now := newTestPoller(t, adapter, Options{})

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	w, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(w) != 1 {
		t.Fatalf("window length = %d, want 1", len(w))
	}
	if !w[0].Timestamp.Equal(now) {
		t.Errorf("snapshot timestamp = %v, want %v", w[0].Timestamp, now)
	}

	rank, err := os.ReadFile(p.rankPath)
	if err != nil {
		t.Fatalf("read rank file: %v", err)
	}
	if got, want := string(rank), "TLS\nDNS\n"; got != want {
		t.Errorf("rank file = %q, want %q", got, want)
	}

	summary, err := os.ReadFile(p.summaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(summary), `"window_minutes": 60`) {
		t.Errorf("summary missing window_minutes: %s", summary)
	}

	latest, found := p.Latest()
	if !found {
		t.Fatal("Latest() found = false after a tick")
	}
	if len(latest.Protocols) != 2 || latest.Protocols[0].Name != "TLS" {
		t.Errorf("latest protocols = %+v, want TLS first", latest.Protocols)
	}
	if latest.WindowMinutes != 60 {
		t.Errorf("latest windowMinutes = %d, want 60", latest.WindowMinutes)
	}
}

func TestTick_AdapterFailureRecordsEmptySnapshot(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	adapter := &fakeAdapter{err: errors.New("ntopng down")}
	p, fs, _ := newTestPoller(t, adapter, Options{Metrics: m})

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v, want nil on adapter failure", err)
	}

	w, _ := fs.Load(context.Background())
	if len(w) != 1 || len(w[0].Protocols) != 0 {
		t.Errorf("window = %+v, want one empty snapshot", w)
	}
	if got := testutil.ToFloat64(m.CollectErrors); got != 1 {
		t.Errorf("collect errors = %v, want 1", got)
	}

	latest, found := p.Latest()
	if !found || latest.Protocols == nil || len(latest.Protocols) != 0 {
		t.Errorf("latest = %+v (found=%v), want empty non-nil ranking", latest, found)
	}
}

func TestTick_PrunesExpiredSnapshots(t *testing.T) {
	adapter := &fakeAdapter{obs: []window.Observation{{Name: "TLS", Count: 1}}}
	p, fs, now := newTestPoller(t, adapter, Options{})

	old := window.Window{
		{Timestamp: now.Add(-2 * time.Hour), Protocols: []window.Observation{{Name: "SMB", Count: 999}}},
		{Timestamp: now.Add(-30 * time.Minute), Protocols: []window.Observation{{Name: "DNS", Count: 5}}},
	}
	if err := fs.Save(context.Background(), old); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	w, _ := fs.Load(context.Background())
	if len(w) != 2 {
		t.Fatalf("window length = %d, want 2", len(w))
	}

	latest, _ := p.Latest()
	for _, proto := range latest.Protocols {
		if proto.Name == "SMB" {
			t.Error("expired snapshot still contributes to the aggregate")
		}
	}
}

func TestTick_LoadFailureDoesNotOverwrite(t *testing.T) {
	adapter := &fakeAdapter{obs: []window.Observation{{Name: "TLS", Count: 1}}}
	st := &failingStore{}
	p := New(adapter, st, time.Hour, Options{RankPath: filepath.Join(t.TempDir(), "protocols.txt")}, testLogger())

	if err := p.Tick(context.Background()); err == nil {
		t.Fatal("Tick() expected error when the window cannot be loaded")
	}
	if st.saved.Load() {
		t.Error("window saved after a failed load")
	}
	if _, found := p.Latest(); found {
		t.Error("Latest() published after a failed tick")
	}
}

func TestTick_RunsSyncer(t *testing.T) {
	syncer := &countingSyncer{}
	adapter := &fakeAdapter{obs: []window.Observation{{Name: "TLS", Count: 1}}}
	p, _, _ := newTestPoller(t, adapter, Options{Syncer: syncer})

	for i := 0; i < 2; i++ {
		if err := p.Tick(context.Background()); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}

	if got := syncer.calls.Load(); got != 2 {
		t.Errorf("sync calls = %d, want 2", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	adapter := &fakeAdapter{}
	p, _, _ := newTestPoller(t, adapter, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, time.Hour) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
