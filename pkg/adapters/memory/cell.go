// Package memory provides an in-memory implementation of the ports.StateCell interface.
package memory

import (
	"context"
	"sync"

	"github.com/aretw0/espalier/pkg/ports"
)

// Cell is a thread-safe, in-memory state cell.
// It is the default backend for machines that do not need persistence.
type Cell[S any] struct {
	mu      sync.RWMutex
	state   S
	written bool
}

// NewCell creates an empty Cell. Read returns ports.ErrStateNotFound
// until the first Write.
func NewCell[S any]() *Cell[S] {
	return &Cell[S]{}
}

// NewSeededCell creates a Cell already holding initial.
func NewSeededCell[S any](initial S) *Cell[S] {
	return &Cell[S]{state: initial, written: true}
}

// Read returns the current state.
func (c *Cell[S]) Read(_ context.Context) (S, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.written {
		var zero S
		return zero, ports.ErrStateNotFound
	}
	return c.state, nil
}

// Write replaces the current state.
func (c *Cell[S]) Write(_ context.Context, state S) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.written = true
	return nil
}
