package policy

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/HatiCode/rulesync/pkg/category"
)

// LoadWhitelist reads newline-delimited category identifiers that must never
// be disabled. Blank lines and lines starting with '#' are ignored; entries
// are lower-cased. A missing file is an empty whitelist.
func LoadWhitelist(path string) (category.Set, error) {
	wl := make(category.Set)
	if path == "" {
		return wl, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return wl, nil
		}
		return wl, fmt.Errorf("open whitelist: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		wl.Add(strings.ToLower(line))
	}
	if err := sc.Err(); err != nil {
		return make(category.Set), fmt.Errorf("read whitelist: %w", err)
	}
	return wl, nil
}
