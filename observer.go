package espalier

import "context"

// TransitionEvent notifies observers of one completed transition. Seq is the
// sequence number assigned when the originating Fire was enqueued.
type TransitionEvent[S, T comparable] struct {
	Seq        uint64
	Transition Transition[S, T]

	// Value is the result of the last entry action executed, if any.
	Value any
}

// RejectionEvent notifies observers of a trigger that was not handled.
// UnmetGuards is non-empty when the trigger was configured but every
// candidate behavior was rejected by its guard. Err carries whatever the
// unhandled-trigger policy returned; it is nil when the policy swallowed the
// rejection.
type RejectionEvent[S, T comparable] struct {
	Seq         uint64
	State       S
	Trigger     T
	UnmetGuards []string
	Err         error
}

// GuardUnmet reports whether the rejection was caused by unmet guards rather
// than a trigger with no configuration anywhere in the state chain.
func (e RejectionEvent[S, T]) GuardUnmet() bool { return len(e.UnmetGuards) > 0 }

// TransitionFunc observes completed transitions.
type TransitionFunc[S, T comparable] func(ctx context.Context, ev TransitionEvent[S, T])

// RejectionFunc observes rejected triggers.
type RejectionFunc[S, T comparable] func(ctx context.Context, ev RejectionEvent[S, T])

// observers holds the ordered callback lists. Callbacks run synchronously on
// the dispatcher goroutine, in registration order, after the state cell has
// been updated.
type observers[S, T comparable] struct {
	transitioned []TransitionFunc[S, T]
	rejected     []RejectionFunc[S, T]
}

func (o *observers[S, T]) notifyTransitioned(ctx context.Context, ev TransitionEvent[S, T]) {
	for _, fn := range o.transitioned {
		fn(ctx, ev)
	}
}

func (o *observers[S, T]) notifyRejected(ctx context.Context, ev RejectionEvent[S, T]) {
	for _, fn := range o.rejected {
		fn(ctx, ev)
	}
}
