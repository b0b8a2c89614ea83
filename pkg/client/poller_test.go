package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HatiCode/rulesync/pkg/aggregate"
)

func TestNewPollerClient(t *testing.T) {
	c := NewPollerClient("http://localhost:8081")
	if c.baseURL != "http://localhost:8081" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.httpClient.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.httpClient.Timeout)
	}
}

func TestPollerClient_GetProtocols(t *testing.T) {
	generated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/protocols/current" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ProtocolsResponse{
			GeneratedAt:   generated,
			WindowMinutes: 60,
			Protocols: []aggregate.Protocol{
				{Name: "TLS", Count: 40},
				{Name: "DNS", Count: 12},
			},
		})
	}))
	defer server.Close()

	res, err := NewPollerClient(server.URL).GetProtocols(context.Background())
	if err != nil {
		t.Fatalf("GetProtocols() error = %v", err)
	}
	if res.Stale {
		t.Error("Stale = true, want false")
	}
	if !res.GeneratedAt.Equal(generated) {
		t.Errorf("GeneratedAt = %v, want %v", res.GeneratedAt, generated)
	}
	if len(res.Protocols) != 2 || res.Protocols[0].Name != "TLS" {
		t.Errorf("Protocols = %v", res.Protocols)
	}
}

func TestPollerClient_Stale(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(StaleHeader, "true")
		w.Write([]byte(`{"generatedAt":"2025-03-01T12:00:00Z","windowMinutes":60,"protocols":[]}`))
	}))
	defer server.Close()

	res, err := NewPollerClient(server.URL).GetProtocols(context.Background())
	if err != nil {
		t.Fatalf("GetProtocols() error = %v", err)
	}
	if !res.Stale {
		t.Error("Stale = false, want true")
	}
}

func TestPollerClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `{"error":"no aggregate"}`},
		{"server error", http.StatusInternalServerError, ``},
		{"bad json", http.StatusOK, `{"protocols":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			if _, err := NewPollerClient(server.URL).GetProtocols(context.Background()); err == nil {
				t.Error("GetProtocols() should fail")
			}
		})
	}
}
