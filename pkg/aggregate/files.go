package aggregate

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/rulesync/pkg/atomicfile"
)

// WriteRankFile atomically writes one protocol name per line, most active first.
func WriteRankFile(path string, ps []Protocol) error {
	return atomicfile.Write(path, 0o644, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, p := range ps {
			if _, err := bw.WriteString(p.Name + "\n"); err != nil {
				return err
			}
		}
		return bw.Flush()
	})
}

// ReadRankFile returns the names listed in a rank file, skipping blank lines.
// A missing file yields no names and no error.
func ReadRankFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open rank file: %w", err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read rank file: %w", err)
	}
	return names, nil
}

// Summary is the aggregated view written alongside the rank file.
type Summary struct {
	Timestamp     time.Time  `json:"timestamp"`
	WindowMinutes int        `json:"window_minutes"`
	Protocols     []Protocol `json:"protocols"`
}

// NewSummary builds a Summary for protocols aggregated over windowDur at now.
func NewSummary(now time.Time, windowDur time.Duration, ps []Protocol) Summary {
	if ps == nil {
		ps = []Protocol{}
	}
	return Summary{
		Timestamp:     now.UTC(),
		WindowMinutes: int(windowDur / time.Minute),
		Protocols:     ps,
	}
}

// WriteSummary atomically writes s as indented JSON.
func WriteSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return atomicfile.WriteFile(path, append(data, '\n'), 0o644)
}
