package window

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func snap(offset time.Duration, obs ...Observation) Snapshot {
	return Snapshot{Timestamp: base.Add(offset), Protocols: obs}
}

func TestAppend_KeepsOrder(t *testing.T) {
	var w Window
	w = Append(w, snap(0))
	w = Append(w, snap(2*time.Minute))
	w = Append(w, snap(time.Minute)) // late arrival
	w = Append(w, snap(3*time.Minute))

	for i := 1; i < len(w); i++ {
		if w[i].Timestamp.Before(w[i-1].Timestamp) {
			t.Fatalf("window not ordered at %d: %v before %v", i, w[i].Timestamp, w[i-1].Timestamp)
		}
	}
	if len(w) != 4 {
		t.Errorf("len = %d, want 4", len(w))
	}
}

func TestAppend_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	w := Append(nil, Snapshot{Timestamp: base.In(loc)})
	if w[0].Timestamp.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", w[0].Timestamp.Location())
	}
}

func TestPrune_Boundary(t *testing.T) {
	now := base.Add(time.Hour)
	w := Window{
		snap(-time.Nanosecond), // older than cutoff
		snap(0),                // exactly at cutoff: kept
		snap(30 * time.Minute), // inside
		snap(time.Hour),        // now
	}

	got := Prune(w, now, time.Hour)
	want := Window{w[1], w[2], w[3]}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Prune() = %v, want %v", got, want)
	}
}

func TestPrune_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := 60 * time.Minute

	for iter := 0; iter < 200; iter++ {
		var w Window
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			off := time.Duration(rng.Int63n(int64(3 * time.Hour)))
			w = Append(w, snap(off))
		}
		now := base.Add(time.Duration(rng.Int63n(int64(3 * time.Hour))))

		got := Prune(w, now, d)

		kept := 0
		for _, s := range w {
			if now.Sub(s.Timestamp) <= d {
				kept++
			}
		}
		if len(got) != kept {
			t.Fatalf("iteration %d: kept %d snapshots, want %d", iter, len(got), kept)
		}
		for _, s := range got {
			if now.Sub(s.Timestamp) > d {
				t.Fatalf("iteration %d: snapshot %v outside window at %v", iter, s.Timestamp, now)
			}
		}
	}
}

func TestPrune_KeepsSnapshotsWhole(t *testing.T) {
	obs := []Observation{{Name: "DNS", Count: 3}, {Name: "TLS", Count: 9}}
	w := Window{snap(0, obs...)}

	got := Prune(w, base.Add(time.Minute), time.Hour)
	if !reflect.DeepEqual(got[0].Protocols, obs) {
		t.Errorf("protocols = %v, want %v", got[0].Protocols, obs)
	}
}

func TestSnapshotJSON_RoundTripUTC(t *testing.T) {
	in := Window{snap(0, Observation{Name: "HTTP", Count: 4})}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[{"timestamp":"2025-03-01T12:00:00Z","protocols":[{"name":"HTTP","count":4}]}]`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}

	var out Window
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}

func TestSnapshotJSON_EmptyProtocols(t *testing.T) {
	data, err := json.Marshal(Snapshot{Timestamp: base})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"timestamp":"2025-03-01T12:00:00Z","protocols":[]}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2025-03-01T12:00:00Z", base, false},
		{"2025-03-01T13:00:00+01:00", base, false},
		{"2025-03-01T12:00:00.250000", base.Add(250 * time.Millisecond), false},
		{"2025-03-01T12:00:00", base, false},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp() = %v, want %v", got, tt.want)
			}
			if !tt.wantErr && got.Location() != time.UTC {
				t.Errorf("location = %v, want UTC", got.Location())
			}
		})
	}
}
