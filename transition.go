package espalier

// Transition describes one executed hop between states. It is built by the
// dispatcher for a single invocation and discarded once observers have been
// notified.
type Transition[S, T comparable] struct {
	Source      S
	Destination S
	Trigger     T
}

// IsReentry reports whether the transition leaves and re-enters the same
// state. Reentrant transitions run only the state's own exit and entry
// actions, never its ancestors'.
func (t Transition[S, T]) IsReentry() bool {
	return t.Source == t.Destination
}
