package espalier

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the firing and lifecycle APIs.
var (
	// ErrNotRunning is returned by Fire and FireSync when the dispatcher has
	// not been started, or has already been stopped.
	ErrNotRunning = errors.New("espalier: dispatcher is not running")

	// ErrStopped is returned to rendezvous callers whose invocation had not
	// been processed when the dispatcher shut down.
	ErrStopped = errors.New("espalier: dispatcher stopped before the invocation was processed")

	// ErrAmbiguousTransition marks resolution failures where more than one
	// guard-satisfied behavior exists for a state/trigger pair. It is carried
	// inside a ConfigurationError and matchable with errors.Is.
	ErrAmbiguousTransition = errors.New("ambiguous transition")
)

// ConfigurationError reports invalid machine configuration. Misuse of the
// configuration API (identity transitions, hierarchy cycles, duplicate
// parameter registration) panics with one of these at configuration time.
// Guard ambiguity can only be observed at resolution time and is surfaced
// through the fatal dispatch path instead.
type ConfigurationError struct {
	State   any
	Trigger any
	Reason  string

	err error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.State != nil && e.Trigger != nil:
		return fmt.Sprintf("espalier: configuration of state %v, trigger %v: %s", e.State, e.Trigger, e.Reason)
	case e.State != nil:
		return fmt.Sprintf("espalier: configuration of state %v: %s", e.State, e.Reason)
	default:
		return fmt.Sprintf("espalier: configuration: %s", e.Reason)
	}
}

func (e *ConfigurationError) Unwrap() error { return e.err }

func newAmbiguityError(state, trigger any, matches int) *ConfigurationError {
	return &ConfigurationError{
		State:   state,
		Trigger: trigger,
		Reason:  fmt.Sprintf("%d guard-satisfied behaviors, at most one may apply", matches),
		err:     ErrAmbiguousTransition,
	}
}

// InvalidTriggerError reports a trigger that could not be handled in the
// current state. UnmetGuards distinguishes "configured but rejected by its
// guards" from "not configured at all": a non-empty slice holds the
// descriptions of every guard that evaluated false along the state chain.
type InvalidTriggerError struct {
	State       any
	Trigger     any
	UnmetGuards []string
}

func (e *InvalidTriggerError) Error() string {
	if len(e.UnmetGuards) > 0 {
		return fmt.Sprintf("espalier: trigger %v is not permitted in state %v, guard conditions not met: %s",
			e.Trigger, e.State, strings.Join(e.UnmetGuards, ", "))
	}
	return fmt.Sprintf("espalier: trigger %v is not configured for state %v or any of its superstates",
		e.Trigger, e.State)
}

// GuardUnmet reports whether the trigger was configured for the state chain
// but every candidate behavior was rejected by its guard.
func (e *InvalidTriggerError) GuardUnmet() bool { return len(e.UnmetGuards) > 0 }

// ArgumentShapeError reports fire arguments that do not match the
// ParameterSpec registered for the trigger. It is detected when the
// invocation is dequeued, not when Fire accepts it.
type ArgumentShapeError struct {
	Trigger any
	// Position is the index of the offending argument, or -1 for count
	// mismatches.
	Position int
	Message  string
}

func (e *ArgumentShapeError) Error() string {
	return fmt.Sprintf("espalier: arguments for trigger %v: %s", e.Trigger, e.Message)
}

// FatalDispatchError wraps an unexpected failure that terminated the
// dispatcher. Seq identifies the invocation being processed when the failure
// occurred. Remaining queued invocations are abandoned.
type FatalDispatchError struct {
	Seq uint64
	Err error
}

func (e *FatalDispatchError) Error() string {
	return fmt.Sprintf("espalier: dispatch terminated at invocation %d: %v", e.Seq, e.Err)
}

func (e *FatalDispatchError) Unwrap() error { return e.Err }
