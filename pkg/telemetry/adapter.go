// Package telemetry provides connectors that fetch the current per-protocol
// counters of a monitored interface from a traffic-analysis backend.
//
// Adapters only fetch and normalize. Windowing, aggregation and every policy
// decision happen in the layers above.
package telemetry

import (
	"context"
	"strings"

	"github.com/HatiCode/rulesync/pkg/window"
)

// Adapter is implemented by every telemetry backend.
//
// Collect is synchronous and must respect context cancellation and deadlines.
// Callers treat any error as "no observations this cycle".
type Adapter interface {
	Collect(ctx context.Context) ([]window.Observation, error)

	// Name returns a short identifier such as "ntopng".
	Name() string
}

// DefaultExcluded are protocol names that carry no information about the
// monitored traffic: the backend's catch-all bucket and its own self traffic.
var DefaultExcluded = []string{"unknown", "ntop"}

// Filter drops observations whose name matches one of excluded
// (case-insensitive) or is blank, and clamps negative counts to zero.
func Filter(in []window.Observation, excluded []string) []window.Observation {
	skip := make(map[string]struct{}, len(excluded))
	for _, e := range excluded {
		skip[strings.ToLower(e)] = struct{}{}
	}

	out := make([]window.Observation, 0, len(in))
	for _, o := range in {
		name := strings.TrimSpace(o.Name)
		if name == "" {
			continue
		}
		if _, ok := skip[strings.ToLower(name)]; ok {
			continue
		}
		if o.Count < 0 {
			o.Count = 0
		}
		o.Name = name
		out = append(out, o)
	}
	return out
}
