package rulesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/rulesync/pkg/client"
	"github.com/HatiCode/rulesync/pkg/window"
)

type memStore struct{ w window.Window }

func (m *memStore) Load(context.Context) (window.Window, error)   { return m.w, nil }
func (m *memStore) Save(_ context.Context, w window.Window) error { m.w = w; return nil }

func TestRankFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocols.txt")
	require.NoError(t, os.WriteFile(path, []byte("TLS\nDNS\n"), 0o644))

	names, err := RankFileSource{Path: path}.ActiveProtocols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"TLS", "DNS"}, names)

	names, err = RankFileSource{Path: path + ".missing"}.ActiveProtocols(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestWindowSource_PrunesBeforeAggregating(t *testing.T) {
	now := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	store := &memStore{w: window.Window{
		{Timestamp: now.Add(-2 * time.Hour), Protocols: []window.Observation{{Name: "FTP", Count: 1000}}},
		{Timestamp: now.Add(-30 * time.Minute), Protocols: []window.Observation{{Name: "DNS", Count: 3}, {Name: "TLS", Count: 8}}},
		{Timestamp: now, Protocols: []window.Observation{{Name: "DNS", Count: 2}}},
	}}

	src := WindowSource{Store: store, Duration: time.Hour, Now: func() time.Time { return now }}
	names, err := src.ActiveProtocols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"TLS", "DNS"}, names)
}

func TestClientSource(t *testing.T) {
	var stale atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if stale.Load() {
			w.Header().Set(client.StaleHeader, "true")
		}
		w.Write([]byte(`{"generatedAt":"2025-03-01T12:00:00Z","windowMinutes":60,"protocols":[{"name":"SSH","count":4},{"name":"DNS","count":1}]}`))
	}))
	defer server.Close()

	src := ClientSource{Client: client.NewPollerClient(server.URL), RejectStale: true}

	names, err := src.ActiveProtocols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SSH", "DNS"}, names)

	stale.Store(true)
	_, err = src.ActiveProtocols(context.Background())
	assert.ErrorIs(t, err, ErrStaleRanking)

	src.RejectStale = false
	names, err = src.ActiveProtocols(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 2)
}
