// Package aggregate folds a protocol window into a single ranked table and
// writes the rank outputs consumed by the rule synchronizer.
package aggregate

import (
	"sort"

	"github.com/HatiCode/rulesync/pkg/window"
)

// Protocol is the total count of one protocol name across a window.
type Protocol struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Aggregate sums observation counts per protocol name across every snapshot
// in w. Names are compared exactly as received. The result is ordered by count
// descending, then name ascending, so identical windows always produce
// identical output.
func Aggregate(w window.Window) []Protocol {
	totals := make(map[string]int64)
	for _, s := range w {
		for _, o := range s.Protocols {
			totals[o.Name] += o.Count
		}
	}

	out := make([]Protocol, 0, len(totals))
	for name, count := range totals {
		out = append(out, Protocol{Name: name, Count: count})
	}
	Sort(out)
	return out
}

// Sort orders protocols by count descending, name ascending.
func Sort(ps []Protocol) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Count != ps[j].Count {
			return ps[i].Count > ps[j].Count
		}
		return ps[i].Name < ps[j].Name
	})
}

// Names returns the protocol names in rank order.
func Names(ps []Protocol) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}
