package espalier

import "context"

// entryAction is one registered entry action, optionally scoped to a
// trigger.
type entryAction[S, T comparable] struct {
	trigger *T
	fn      EntryFunc[S, T]
}

func (a entryAction[S, T]) applies(trigger T) bool {
	return a.trigger == nil || *a.trigger == trigger
}

// stateNode is one node of the state hierarchy: the state's identity, its
// candidate behaviors per trigger, its entry and exit actions, and its place
// in the superstate tree. Nodes are created lazily on first reference and
// live for the machine's lifetime. The parent/child graph must stay acyclic;
// the builder enforces this when assigning parents.
type stateNode[S, T comparable] struct {
	state        S
	behaviors    map[T][]triggerBehavior[S, T]
	entryActions []entryAction[S, T]
	exitActions  []ExitFunc[S, T]
	superstate   *stateNode[S, T]
	substates    []*stateNode[S, T]
}

func newStateNode[S, T comparable](state S) *stateNode[S, T] {
	return &stateNode[S, T]{
		state:     state,
		behaviors: make(map[T][]triggerBehavior[S, T]),
	}
}

func (n *stateNode[S, T]) addBehavior(b triggerBehavior[S, T]) {
	t := b.trigger()
	n.behaviors[t] = append(n.behaviors[t], b)
}

func (n *stateNode[S, T]) addSubstate(sub *stateNode[S, T]) {
	n.substates = append(n.substates, sub)
}

// canHandle reports whether the trigger resolves to exactly one
// guard-satisfied behavior on this node or an ancestor.
func (n *stateNode[S, T]) canHandle(trigger T, args []any) bool {
	_, ok, err := n.findHandler(trigger, args)
	return ok && err == nil
}

// findHandler resolves the trigger against this node's local behaviors,
// delegating to the superstate when nothing matches locally. Exactly one
// guard-satisfied behavior must remain: more than one is an ambiguity
// error, none anywhere in the chain reports ok=false.
func (n *stateNode[S, T]) findHandler(trigger T, args []any) (triggerBehavior[S, T], bool, error) {
	var matches []triggerBehavior[S, T]
	for _, b := range n.behaviors[trigger] {
		if b.guardMet(args) {
			matches = append(matches, b)
		}
	}
	switch {
	case len(matches) > 1:
		return nil, false, newAmbiguityError(n.state, trigger, len(matches))
	case len(matches) == 1:
		return matches[0], true, nil
	}
	if n.superstate != nil {
		return n.superstate.findHandler(trigger, args)
	}
	return nil, false, nil
}

// findUnmetGuards collects the descriptions of every guard that rejected
// the trigger along the ancestor chain. Only used to shape rejection
// messages: a non-empty result means "configured but guarded off" rather
// than "not configured at all".
func (n *stateNode[S, T]) findUnmetGuards(trigger T, args []any) []string {
	var unmet []string
	for node := n; node != nil; node = node.superstate {
		for _, b := range node.behaviors[trigger] {
			unmet = append(unmet, b.unmetGuards(args)...)
		}
	}
	return unmet
}

// includes reports whether state is this node or lies in its subtree.
func (n *stateNode[S, T]) includes(state S) bool {
	if n.state == state {
		return true
	}
	for _, sub := range n.substates {
		if sub.includes(state) {
			return true
		}
	}
	return false
}

// isIncludedIn reports whether state is this node or one of its ancestors.
func (n *stateNode[S, T]) isIncludedIn(state S) bool {
	if n.state == state {
		return true
	}
	if n.superstate != nil {
		return n.superstate.isIncludedIn(state)
	}
	return false
}

// permittedTriggers is the set of triggers with at least one guard-satisfied
// local behavior, unioned with the superstate's permitted set. A substate
// always offers everything its superstate offers plus its own.
func (n *stateNode[S, T]) permittedTriggers(args []any) []T {
	var out []T
	for trigger, behaviors := range n.behaviors {
		for _, b := range behaviors {
			if b.guardMet(args) {
				out = append(out, trigger)
				break
			}
		}
	}
	if n.superstate != nil {
		for _, t := range n.superstate.permittedTriggers(args) {
			if !containsTrigger(out, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

func containsTrigger[T comparable](ts []T, t T) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

// exit runs exit actions for a transition leaving this node. A reentry runs
// only this node's own exit actions. Otherwise actions fire leaf to root,
// stopping below the first ancestor whose subtree contains the destination.
func (n *stateNode[S, T]) exit(ctx context.Context, tr Transition[S, T]) error {
	if tr.IsReentry() {
		return n.runExitActions(ctx, tr)
	}
	if !n.includes(tr.Destination) {
		if err := n.runExitActions(ctx, tr); err != nil {
			return err
		}
		if n.superstate != nil {
			return n.superstate.exit(ctx, tr)
		}
	}
	return nil
}

// enter runs entry actions for a transition arriving at this node. A
// reentry runs only this node's own entry actions. Otherwise every ancestor
// not containing the source is entered first, outer to inner. The returned
// value is the result of the last entry action executed during the phase.
func (n *stateNode[S, T]) enter(ctx context.Context, tr Transition[S, T], args []any) (any, error) {
	if tr.IsReentry() {
		return n.runEntryActions(ctx, tr, args, nil)
	}
	if !n.includes(tr.Source) {
		var carry any
		if n.superstate != nil {
			v, err := n.superstate.enter(ctx, tr, args)
			if err != nil {
				return nil, err
			}
			carry = v
		}
		return n.runEntryActions(ctx, tr, args, carry)
	}
	return nil, nil
}

func (n *stateNode[S, T]) runEntryActions(ctx context.Context, tr Transition[S, T], args []any, carry any) (any, error) {
	result := carry
	for _, a := range n.entryActions {
		if !a.applies(tr.Trigger) {
			continue
		}
		v, err := a.fn(ctx, tr, args...)
		if err != nil {
			return nil, err
		}
		result = v
	}
	return result, nil
}

func (n *stateNode[S, T]) runExitActions(ctx context.Context, tr Transition[S, T]) error {
	for _, fn := range n.exitActions {
		if err := fn(ctx, tr); err != nil {
			return err
		}
	}
	return nil
}
