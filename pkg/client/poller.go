// Package client provides HTTP clients for communicating with rulesync services.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/HatiCode/rulesync/pkg/aggregate"
)

// StaleHeader is set by the poller when its aggregate is older than expected.
const StaleHeader = "X-Rulesync-Stale"

// PollerClient fetches the current protocol ranking from the poller service.
// It is safe for concurrent use by multiple goroutines.
type PollerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPollerClient creates a client for the poller at baseURL
// (e.g. "http://localhost:8081") with a 5 second request timeout.
func NewPollerClient(baseURL string) *PollerClient {
	return NewPollerClientWithTimeout(baseURL, 5*time.Second)
}

// NewPollerClientWithTimeout creates a client with a custom timeout.
func NewPollerClientWithTimeout(baseURL string, timeout time.Duration) *PollerClient {
	return &PollerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ProtocolsResponse is the JSON body of GET /protocols/current.
type ProtocolsResponse struct {
	GeneratedAt   time.Time            `json:"generatedAt"`
	WindowMinutes int                  `json:"windowMinutes"`
	Protocols     []aggregate.Protocol `json:"protocols"`
}

// ProtocolsResult is a ranking plus whether the poller flagged it as stale.
type ProtocolsResult struct {
	ProtocolsResponse
	Stale bool
}

// GetProtocols fetches the poller's latest aggregated ranking.
func (c *PollerClient) GetProtocols(ctx context.Context) (*ProtocolsResult, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = "/protocols/current"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("poller has no aggregate yet")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var pr ProtocolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &ProtocolsResult{
		ProtocolsResponse: pr,
		Stale:             resp.Header.Get(StaleHeader) == "true",
	}, nil
}
