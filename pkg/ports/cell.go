package ports

import (
	"context"
	"errors"
)

// ErrStateNotFound is returned by StateCell.Read when no state has been
// recorded yet. Adapters translate their backend's empty-read sentinel into
// this error so hosts can seed an initial state uniformly.
var ErrStateNotFound = errors.New("state not found")

// StateCell is the capability the host supplies for current-state storage.
// The engine treats the cell as the single source of truth: it never keeps
// its own current-state field, reads the cell at the start of every dispatch
// cycle, and writes it between the exit and enter chains.
//
// Dispatch touches the cell from a single goroutine, but introspection
// helpers read it from caller goroutines, so implementations must be safe
// for concurrent use.
type StateCell[S any] interface {
	// Read returns the current state.
	Read(ctx context.Context) (S, error)

	// Write replaces the current state.
	Write(ctx context.Context, state S) error
}
