package espalier

import (
	"context"
	"fmt"
)

// EntryFunc runs when a state is entered. The returned value, if any, is
// delivered to rendezvous callers; when several entry actions run during one
// enter phase, the value of the last one executed wins.
type EntryFunc[S, T comparable] func(ctx context.Context, tr Transition[S, T], args ...any) (any, error)

// ExitFunc runs when a state is exited.
type ExitFunc[S, T comparable] func(ctx context.Context, tr Transition[S, T]) error

// InternalActionFunc runs for an internal transition: the machine stays in
// the source state and no exit or entry actions fire.
type InternalActionFunc[S, T comparable] func(ctx context.Context, tr Transition[S, T], args ...any) error

// DestinationFunc computes a transition destination from the fire arguments.
type DestinationFunc[S comparable] func(args ...any) (S, error)

// triggerBehavior is one candidate handling of a trigger from a state: a
// guard plus a destination resolver. Behaviors are immutable once added to a
// node. At most one behavior per (state, trigger) may have its guard
// satisfied at fire time.
type triggerBehavior[S, T comparable] interface {
	trigger() T
	guardMet(args []any) bool
	unmetGuards(args []any) []string

	// resolveDestination yields the destination state. ok is false for
	// behaviors that do not produce a transition (ignored, internal).
	resolveDestination(source S, args []any) (dest S, ok bool, err error)
}

type baseBehavior[S, T comparable] struct {
	t     T
	guard transitionGuard
}

func (b *baseBehavior[S, T]) trigger() T                      { return b.t }
func (b *baseBehavior[S, T]) guardMet(args []any) bool        { return b.guard.met(args) }
func (b *baseBehavior[S, T]) unmetGuards(args []any) []string { return b.guard.unmet(args) }

// transitioningBehavior moves the machine to a fixed destination. Reentry is
// the same behavior with the destination set to the source state.
type transitioningBehavior[S, T comparable] struct {
	baseBehavior[S, T]
	destination S
}

func (b *transitioningBehavior[S, T]) resolveDestination(S, []any) (S, bool, error) {
	return b.destination, true, nil
}

// dynamicBehavior resolves its destination from the fire arguments.
type dynamicBehavior[S, T comparable] struct {
	baseBehavior[S, T]
	resolve DestinationFunc[S]
}

func (b *dynamicBehavior[S, T]) resolveDestination(_ S, args []any) (S, bool, error) {
	dest, err := b.resolve(args...)
	if err != nil {
		var zero S
		return zero, false, fmt.Errorf("dynamic destination for trigger %v: %w", b.t, err)
	}
	return dest, true, nil
}

// ignoredBehavior accepts the trigger and does nothing.
type ignoredBehavior[S, T comparable] struct {
	baseBehavior[S, T]
}

func (b *ignoredBehavior[S, T]) resolveDestination(S, []any) (S, bool, error) {
	var zero S
	return zero, false, nil
}

// internalBehavior runs an action without leaving the source state.
type internalBehavior[S, T comparable] struct {
	baseBehavior[S, T]
	action InternalActionFunc[S, T]
}

func (b *internalBehavior[S, T]) resolveDestination(S, []any) (S, bool, error) {
	var zero S
	return zero, false, nil
}
