package window

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/HatiCode/rulesync/pkg/atomicfile"
)

// Store persists a Window across process restarts.
//
// Load treats a missing or undecodable store as an empty window: the window
// is rebuilt by polling, so persistence is best effort. Load returns an error
// only when the backend itself could not be reached or read, and even then
// the returned window is usable (empty).
type Store interface {
	Load(ctx context.Context) (Window, error)
	Save(ctx context.Context, w Window) error
}

// FileStore keeps the window as a JSON array in a single file.
// Saves are atomic, so a concurrent Load from another process never sees a
// partially written window.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Window{}, nil
		}
		return Window{}, fmt.Errorf("read window file: %w", err)
	}

	w, err := decode(data)
	if err != nil {
		s.logger.Warn("discarding corrupt window file", "path", s.path, "error", err)
		return Window{}, nil
	}
	return w, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, w Window) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(w)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(s.path, data, 0o644)
}

func encode(w Window) ([]byte, error) {
	if w == nil {
		w = Window{}
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode window: %w", err)
	}
	return append(data, '\n'), nil
}

func decode(data []byte) (Window, error) {
	var w Window
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w == nil {
		w = Window{}
	}
	return w, nil
}
