package router

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/rulesync/pkg/rulesync"
)

type fakeLast struct {
	res   rulesync.Result
	found bool
}

func (f fakeLast) Last() (rulesync.Result, bool) { return f.res, f.found }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPolicyCurrent(t *testing.T) {
	src := fakeLast{found: true, res: rulesync.Result{
		CycleID:  "abc",
		State:    rulesync.StateUnchanged,
		Disabled: []string{"ftp"},
		Checksum: "deadbeef",
	}}
	mux := SetupRoutes(src, prometheus.NewRegistry(), testLogger())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policy/current", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got rulesync.Result
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != rulesync.StateUnchanged || got.Checksum != "deadbeef" {
		t.Errorf("result = %+v, want UNCHANGED deadbeef", got)
	}
	if len(got.Disabled) != 1 || got.Disabled[0] != "ftp" {
		t.Errorf("disabled = %v, want [ftp]", got.Disabled)
	}
}

func TestPolicyCurrent_NoCycleYet(t *testing.T) {
	mux := SetupRoutes(fakeLast{}, prometheus.NewRegistry(), testLogger())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policy/current", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestMetrics_ServesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "rulesync_router_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	mux := SetupRoutes(fakeLast{}, reg, testLogger())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "rulesync_router_test_total 1") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	mux := SetupRoutes(fakeLast{}, prometheus.NewRegistry(), testLogger())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name string
		mux  *http.ServeMux
		want int
	}{
		{"not ready", SetupRoutes(fakeLast{}, prometheus.NewRegistry(), testLogger()), http.StatusServiceUnavailable},
		{"ready", SetupRoutes(fakeLast{found: true}, prometheus.NewRegistry(), testLogger()), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
