package espalier

import "fmt"

// StateConfig is the fluent builder for one state. Methods return the
// receiver for chaining and panic with a *ConfigurationError on invalid
// configuration. Builders must not be used once the machine has started.
type StateConfig[S, T comparable] struct {
	machine *Machine[S, T]
	node    *stateNode[S, T]
}

// State returns the state being configured.
func (c *StateConfig[S, T]) State() S { return c.node.state }

// Permit configures a transition to destination when trigger fires. Use
// PermitReentry for transitions back into the same state.
func (c *StateConfig[S, T]) Permit(trigger T, destination S) *StateConfig[S, T] {
	c.enforceNotIdentity(trigger, destination)
	c.node.addBehavior(&transitioningBehavior[S, T]{
		baseBehavior: baseBehavior[S, T]{t: trigger},
		destination:  destination,
	})
	return c
}

// PermitIf is Permit gated by guard. desc names the guard in rejection
// messages; when omitted, the guard's function symbol is used.
func (c *StateConfig[S, T]) PermitIf(trigger T, destination S, guard GuardFunc, desc ...string) *StateConfig[S, T] {
	c.enforceNotIdentity(trigger, destination)
	c.node.addBehavior(&transitioningBehavior[S, T]{
		baseBehavior: baseBehavior[S, T]{t: trigger, guard: newTransitionGuard(guard, firstOrEmpty(desc))},
		destination:  destination,
	})
	return c
}

// PermitReentry configures trigger to exit and re-enter this state, running
// only the state's own exit and entry actions, never its ancestors'.
func (c *StateConfig[S, T]) PermitReentry(trigger T) *StateConfig[S, T] {
	c.node.addBehavior(&transitioningBehavior[S, T]{
		baseBehavior: baseBehavior[S, T]{t: trigger},
		destination:  c.node.state,
	})
	return c
}

// PermitReentryIf is PermitReentry gated by guard.
func (c *StateConfig[S, T]) PermitReentryIf(trigger T, guard GuardFunc, desc ...string) *StateConfig[S, T] {
	c.node.addBehavior(&transitioningBehavior[S, T]{
		baseBehavior: baseBehavior[S, T]{t: trigger, guard: newTransitionGuard(guard, firstOrEmpty(desc))},
		destination:  c.node.state,
	})
	return c
}

// PermitDynamic routes trigger to a destination computed from the fire
// arguments at dispatch time.
func (c *StateConfig[S, T]) PermitDynamic(trigger T, resolve DestinationFunc[S]) *StateConfig[S, T] {
	if resolve == nil {
		panic(&ConfigurationError{State: c.node.state, Trigger: trigger, Reason: "nil destination resolver"})
	}
	c.node.addBehavior(&dynamicBehavior[S, T]{
		baseBehavior: baseBehavior[S, T]{t: trigger},
		resolve:      resolve,
	})
	return c
}

// PermitDynamicIf is PermitDynamic gated by guard.
func (c *StateConfig[S, T]) PermitDynamicIf(trigger T, resolve DestinationFunc[S], guard GuardFunc, desc ...string) *StateConfig[S, T] {
	if resolve == nil {
		panic(&ConfigurationError{State: c.node.state, Trigger: trigger, Reason: "nil destination resolver"})
	}
	c.node.addBehavior(&dynamicBehavior[S, T]{
		baseBehavior: baseBehavior[S, T]{t: trigger, guard: newTransitionGuard(guard, firstOrEmpty(desc))},
		resolve:      resolve,
	})
	return c
}

// Ignore accepts trigger without transitioning or running any actions.
func (c *StateConfig[S, T]) Ignore(trigger T) *StateConfig[S, T] {
	c.node.addBehavior(&ignoredBehavior[S, T]{
		baseBehavior: baseBehavior[S, T]{t: trigger},
	})
	return c
}

// IgnoreIf is Ignore gated by guard.
func (c *StateConfig[S, T]) IgnoreIf(trigger T, guard GuardFunc, desc ...string) *StateConfig[S, T] {
	c.node.addBehavior(&ignoredBehavior[S, T]{
		baseBehavior: baseBehavior[S, T]{t: trigger, guard: newTransitionGuard(guard, firstOrEmpty(desc))},
	})
	return c
}

// InternalTransition runs action when trigger fires without leaving the
// state; no exit or entry actions run.
func (c *StateConfig[S, T]) InternalTransition(trigger T, action InternalActionFunc[S, T]) *StateConfig[S, T] {
	if action == nil {
		panic(&ConfigurationError{State: c.node.state, Trigger: trigger, Reason: "nil internal action"})
	}
	c.node.addBehavior(&internalBehavior[S, T]{
		baseBehavior: baseBehavior[S, T]{t: trigger},
		action:       action,
	})
	return c
}

// OnEntry adds an entry action that runs whenever this state is entered.
func (c *StateConfig[S, T]) OnEntry(fn EntryFunc[S, T]) *StateConfig[S, T] {
	if fn == nil {
		panic(&ConfigurationError{State: c.node.state, Reason: "nil entry action"})
	}
	c.node.entryActions = append(c.node.entryActions, entryAction[S, T]{fn: fn})
	return c
}

// OnEntryFrom adds an entry action scoped to transitions caused by trigger.
func (c *StateConfig[S, T]) OnEntryFrom(trigger T, fn EntryFunc[S, T]) *StateConfig[S, T] {
	if fn == nil {
		panic(&ConfigurationError{State: c.node.state, Trigger: trigger, Reason: "nil entry action"})
	}
	t := trigger
	c.node.entryActions = append(c.node.entryActions, entryAction[S, T]{trigger: &t, fn: fn})
	return c
}

// OnExit adds an exit action that runs whenever this state is exited.
func (c *StateConfig[S, T]) OnExit(fn ExitFunc[S, T]) *StateConfig[S, T] {
	if fn == nil {
		panic(&ConfigurationError{State: c.node.state, Reason: "nil exit action"})
	}
	c.node.exitActions = append(c.node.exitActions, fn)
	return c
}

// SubstateOf nests this state inside superstate: the substate inherits the
// superstate's permitted triggers and participates in its entry/exit chains.
// The parent is assigned once; re-assigning it or introducing a cycle
// panics.
func (c *StateConfig[S, T]) SubstateOf(superstate S) *StateConfig[S, T] {
	if superstate == c.node.state {
		panic(&ConfigurationError{State: c.node.state, Reason: "state cannot be a substate of itself"})
	}
	if c.node.superstate != nil {
		if c.node.superstate.state == superstate {
			return c
		}
		panic(&ConfigurationError{
			State:  c.node.state,
			Reason: fmt.Sprintf("superstate already assigned to %v", c.node.superstate.state),
		})
	}
	parent := c.machine.node(superstate)
	// Finding this node among the candidate's ancestors would close a cycle.
	for anc := parent; anc != nil; anc = anc.superstate {
		if anc.state == c.node.state {
			panic(&ConfigurationError{
				State:  c.node.state,
				Reason: fmt.Sprintf("substate relationship with %v creates a cycle", superstate),
			})
		}
	}
	c.node.superstate = parent
	parent.addSubstate(c.node)
	return c
}

func (c *StateConfig[S, T]) enforceNotIdentity(trigger T, destination S) {
	if destination == c.node.state {
		panic(&ConfigurationError{
			State:   c.node.state,
			Trigger: trigger,
			Reason:  "identity transition, use PermitReentry to re-enter the current state",
		})
	}
}

func firstOrEmpty(s []string) string {
	if len(s) > 0 {
		return s[0]
	}
	return ""
}
