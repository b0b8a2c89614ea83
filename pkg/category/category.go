// Package category discovers IDS rule categories from a rule directory and
// maps observed protocol names onto them.
package category

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RuleExt is the extension of rule files considered during discovery.
const RuleExt = ".rules"

// Separator splits a rule file stem into category and qualifier,
// e.g. "http-events" belongs to category "http".
const Separator = "-"

// ErrNamespaceUnavailable is returned when the rule directory cannot be read.
var ErrNamespaceUnavailable = errors.New("rule namespace unavailable")

// Set is a set of lower-case category identifiers.
type Set map[string]struct{}

// NewSet builds a Set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in s.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s Set) Add(id string) { s[id] = struct{}{} }

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FromFilename returns the category a rule file belongs to: the lower-cased
// stem up to the first separator. ok is false for files that are not rule files.
func FromFilename(name string) (id string, ok bool) {
	base := filepath.Base(name)
	if !strings.EqualFold(filepath.Ext(base), RuleExt) {
		return "", false
	}
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	if before, _, found := strings.Cut(stem, Separator); found {
		stem = before
	}
	if stem == "" {
		return "", false
	}
	return stem, true
}

// Discover enumerates the rule files in dir and returns their categories.
// Only file names are read. A directory with no rule files yields an empty
// set and no error; a missing or unreadable directory yields an error
// wrapping ErrNamespaceUnavailable.
func Discover(ctx context.Context, dir string) (Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNamespaceUnavailable, dir, err)
	}

	cats := make(Set)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := FromFilename(e.Name()); ok {
			cats.Add(id)
		}
	}
	return cats, nil
}
