package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/HatiCode/rulesync/pkg/window"
)

// NtopngAdapter reads L7 protocol counters from the ntopng REST API:
//
//	GET /lua/rest/v2/get/flow/l7/counters.lua?ifid=<id>
//
// The response envelope is {"rc": 0, "rsp": [{"name": "...", "count": N}, ...]}.
// A non-zero rc, a non-2xx status or an undecodable body is an error.
type NtopngAdapter struct {
	// BaseURL of the ntopng instance, e.g. http://127.0.0.1:3000
	BaseURL string
	// User and Password are sent as HTTP basic auth when User is set.
	User     string
	Password string
	// InterfaceID is ntopng's ifid of the monitored interface.
	InterfaceID int
	// Excluded overrides DefaultExcluded when non-nil.
	Excluded []string
	// HTTPClient is optional; if nil a client with a 10s timeout is used.
	HTTPClient *http.Client
}

const ntopngCountersPath = "/lua/rest/v2/get/flow/l7/counters.lua"

func (n *NtopngAdapter) Name() string { return "ntopng" }

type ntopngResponse struct {
	RC  *int              `json:"rc"`
	RSP []ntopngL7Counter `json:"rsp"`
}

type ntopngL7Counter struct {
	Name  string      `json:"name"`
	Count json.Number `json:"count"`
}

// Collect implements Adapter.
func (n *NtopngAdapter) Collect(ctx context.Context) ([]window.Observation, error) {
	if n.BaseURL == "" {
		return nil, errors.New("ntopng adapter: BaseURL is required")
	}

	u, err := url.Parse(n.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	u = u.JoinPath(ntopngCountersPath)
	q := u.Query()
	q.Set("ifid", strconv.Itoa(n.InterfaceID))
	u.RawQuery = q.Encode()

	cli := n.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if n.User != "" {
		req.SetBasicAuth(n.User, n.Password)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ntopng: status %d", resp.StatusCode)
	}

	var nr ntopngResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&nr); err != nil {
		return nil, fmt.Errorf("decode ntopng response: %w", err)
	}
	if nr.RC == nil || *nr.RC != 0 {
		return nil, fmt.Errorf("ntopng: unexpected response code %s", rcString(nr.RC))
	}

	obs := make([]window.Observation, 0, len(nr.RSP))
	for _, c := range nr.RSP {
		count, err := parseCount(c.Count)
		if err != nil {
			return nil, fmt.Errorf("ntopng: protocol %q: %w", c.Name, err)
		}
		obs = append(obs, window.Observation{Name: c.Name, Count: count})
	}

	excluded := n.Excluded
	if excluded == nil {
		excluded = DefaultExcluded
	}
	return Filter(obs, excluded), nil
}

func parseCount(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", n)
	}
	return int64(f), nil
}

func rcString(rc *int) string {
	if rc == nil {
		return "<missing>"
	}
	return strconv.Itoa(*rc)
}
