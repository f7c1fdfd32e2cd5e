// Package file provides a ports.StateCell backed by a single file on the
// local filesystem.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/espalier/pkg/persistence"
	"github.com/aretw0/espalier/pkg/ports"
)

// Cell persists the machine state to one file, encoded by a
// persistence.Codec. Writes go to a temporary file first, are synced, and
// then renamed over the destination, so a crash never leaves a partial file.
type Cell[S any] struct {
	path  string
	codec persistence.Codec
}

// Option configures a Cell.
type Option[S any] func(*Cell[S])

// WithCodec replaces the default JSON codec.
func WithCodec[S any](codec persistence.Codec) Option[S] {
	return func(c *Cell[S]) {
		c.codec = codec
	}
}

// New creates a Cell storing state at path.
// If path is empty, it defaults to ".espalier/state.json".
func New[S any](path string, opts ...Option[S]) *Cell[S] {
	if path == "" {
		path = filepath.Join(".espalier", "state.json")
	}
	c := &Cell[S]{path: path, codec: persistence.JSON{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read loads and decodes the state file.
func (c *Cell[S]) Read(_ context.Context) (S, error) {
	var state S

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, ports.ErrStateNotFound
		}
		return state, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := c.codec.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to decode state file: %w", err)
	}
	return state, nil
}

// Write encodes the state and atomically replaces the state file.
func (c *Cell[S]) Write(_ context.Context, state S) error {
	data, err := c.codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure state directory: %w", err)
	}

	// Same directory as the destination so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()    // Ensure closed
		_ = os.Remove(tmpPath) // Remove if still exists (not renamed)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows os.Rename fails if the destination exists, so remove it first.
	if _, err := os.Stat(c.path); err == nil {
		if err := os.Remove(c.path); err != nil {
			return fmt.Errorf("failed to remove existing state file for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}

	return nil
}
