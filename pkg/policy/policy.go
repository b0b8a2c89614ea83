// Package policy computes which rule categories to disable and renders the
// disable-list artifact read by the detection engine on reload.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/HatiCode/rulesync/pkg/category"
)

// DirectivePrefix starts every line of the disable list. The engine treats
// the remainder as a regular expression over rule-file names.
const DirectivePrefix = "re:"

// Artifact is a rendered disable list and the sha256 of its content.
type Artifact struct {
	Content  []byte
	Checksum string
}

// DisabledSet returns all - (enabled ∪ whitelist). Active traffic and the
// whitelist protect a category equally; everything unprotected is disabled.
func DisabledSet(all, enabled, whitelist category.Set) category.Set {
	disabled := make(category.Set)
	for id := range all {
		if enabled.Has(id) || whitelist.Has(id) {
			continue
		}
		disabled.Add(id)
	}
	return disabled
}

// Render produces one directive per disabled category in sorted order, so
// the same logical policy always renders to the same bytes.
func Render(disabled category.Set) Artifact {
	var b strings.Builder
	for _, id := range disabled.Sorted() {
		b.WriteString(DirectivePrefix)
		b.WriteString(id)
		b.WriteByte('\n')
	}
	content := []byte(b.String())
	return Artifact{Content: content, Checksum: Checksum(content)}
}

// Checksum returns the hex sha256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FileChecksum hashes the file at path. exists is false, with no error, when
// the file does not exist.
func FileChecksum(path string) (sum string, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", true, fmt.Errorf("hash artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}
