// Package window holds the rolling, time-bounded record of protocol
// observations that the rest of rulesync derives its decisions from.
//
// A Window is an ascending sequence of Snapshots, one per poll cycle. Snapshots
// are appended as they arrive and age out as a unit once their timestamp falls
// outside the configured duration; nothing inside a snapshot is ever trimmed.
package window

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DefaultDuration is the span of telemetry kept in the window.
const DefaultDuration = 60 * time.Minute

// Observation is one protocol counter reported by the telemetry collaborator.
type Observation struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Snapshot is the full set of observations from a single poll.
type Snapshot struct {
	Timestamp time.Time
	Protocols []Observation
}

// Window is a sequence of snapshots ordered oldest first.
type Window []Snapshot

// legacyLayouts are accepted when decoding timestamps written without a zone
// offset; they are interpreted as UTC.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

type snapshotJSON struct {
	Timestamp string        `json:"timestamp"`
	Protocols []Observation `json:"protocols"`
}

// MarshalJSON encodes the snapshot with an RFC 3339 UTC timestamp.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	protocols := s.Protocols
	if protocols == nil {
		protocols = []Observation{}
	}
	return json.Marshal(snapshotJSON{
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
		Protocols: protocols,
	})
}

// UnmarshalJSON decodes a snapshot, normalizing the timestamp to UTC.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	s.Timestamp = ts
	s.Protocols = raw.Protocols
	return nil
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without an offset are
// taken to be UTC.
func ParseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid snapshot timestamp %q", v)
}

// Append adds s to w, keeping w ordered by timestamp. Snapshots normally
// arrive in order, so the common case is a plain append.
func Append(w Window, s Snapshot) Window {
	s.Timestamp = s.Timestamp.UTC()
	i := sort.Search(len(w), func(i int) bool {
		return w[i].Timestamp.After(s.Timestamp)
	})
	w = append(w, Snapshot{})
	copy(w[i+1:], w[i:])
	w[i] = s
	return w
}

// Prune drops every snapshot older than now-d. A snapshot exactly d old is kept.
// The returned window shares no backing array with w.
func Prune(w Window, now time.Time, d time.Duration) Window {
	cutoff := now.UTC().Add(-d)
	out := make(Window, 0, len(w))
	for _, s := range w {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Oldest returns the timestamp of the first snapshot, or the zero time.
func (w Window) Oldest() time.Time {
	if len(w) == 0 {
		return time.Time{}
	}
	return w[0].Timestamp
}
