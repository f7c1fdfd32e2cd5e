package schema

import "fmt"

// Validate checks the definition for structural problems and returns an
// AggregateError collecting every failure found: a missing or undeclared
// initial state, transitions targeting undeclared states, superstate
// cycles, conflicting transition kinds, and states unreachable from the
// initial state.
func (d *Definition) Validate() error {
	var errs []error

	if d.Initial == "" {
		errs = append(errs, &ValidationError{Key: "initial", Reason: "required"})
	} else if _, ok := d.States[d.Initial]; !ok {
		errs = append(errs, &ValidationError{Key: "initial", Reason: fmt.Sprintf("state %q not declared", d.Initial)})
	}

	if len(d.States) == 0 {
		errs = append(errs, &ValidationError{Key: "states", Reason: "at least one state is required"})
	}

	for _, name := range d.StateNames() {
		errs = append(errs, validateState(d, name)...)
	}

	errs = append(errs, findSuperstateCycles(d.States)...)
	errs = append(errs, findUnreachable(d)...)

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

func validateState(d *Definition, name string) []error {
	var errs []error
	sd := d.States[name]
	key := "states." + name

	if sd.Superstate != "" {
		if sd.Superstate == name {
			errs = append(errs, &ValidationError{Key: key + ".superstate", Reason: "state cannot be its own superstate"})
		} else if _, ok := d.States[sd.Superstate]; !ok {
			errs = append(errs, &ValidationError{Key: key + ".superstate", Reason: fmt.Sprintf("state %q not declared", sd.Superstate)})
		}
	}

	for i, t := range sd.Transitions {
		tkey := fmt.Sprintf("%s.transitions[%d]", key, i)

		if t.Trigger == "" {
			errs = append(errs, &ValidationError{Key: tkey + ".trigger", Reason: "required"})
		}

		kinds := 0
		if t.To != "" {
			kinds++
		}
		if t.Dynamic != "" {
			kinds++
		}
		if t.Internal != "" {
			kinds++
		}
		if t.Ignore {
			kinds++
		}
		switch {
		case kinds == 0:
			errs = append(errs, &ValidationError{Key: tkey, Reason: "one of to, dynamic, internal, or ignore is required"})
		case kinds > 1:
			errs = append(errs, &ValidationError{Key: tkey, Reason: "to, dynamic, internal, and ignore are mutually exclusive"})
		}

		if t.To != "" {
			if _, ok := d.States[t.To]; !ok {
				errs = append(errs, &ValidationError{Key: tkey + ".to", Reason: fmt.Sprintf("state %q not declared", t.To)})
			}
		}

		if t.Internal != "" && t.Guard != "" {
			errs = append(errs, &ValidationError{Key: tkey + ".guard", Reason: "internal transitions cannot be guarded"})
		}
	}

	return errs
}

func findSuperstateCycles(states map[string]StateDef) []error {
	var errs []error

	for _, name := range sortedKeys(states) {
		seen := map[string]bool{name: true}
		current := states[name].Superstate
		for current != "" && current != name {
			if seen[current] {
				// Cycle not through name; its members report it themselves.
				break
			}
			seen[current] = true
			next, ok := states[current]
			if !ok {
				break
			}
			current = next.Superstate
		}
		if current == name && states[name].Superstate != "" && states[name].Superstate != name {
			errs = append(errs, &ValidationError{Key: "states." + name + ".superstate", Reason: "superstate chain forms a cycle"})
		}
	}

	return errs
}

// findUnreachable reports states no chain of transitions can occupy
// starting from the initial state. Superstates count as occupied whenever
// one of their substates is. Dynamic destinations are resolved at runtime,
// so reachability is not decidable once a definition uses them and the
// check is skipped.
func findUnreachable(d *Definition) []error {
	if d.Initial == "" {
		return nil
	}
	if _, ok := d.States[d.Initial]; !ok {
		return nil
	}

	for _, sd := range d.States {
		for _, t := range sd.Transitions {
			if t.Dynamic != "" {
				return nil
			}
		}
	}

	visited := make(map[string]bool)
	queue := []string{d.Initial}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}
		visited[current] = true

		sd, ok := d.States[current]
		if !ok {
			continue
		}

		// Substates occupy their ancestors implicitly, and the ancestors'
		// transitions fire on the substate's behalf, so visiting the
		// ancestor also queues those inherited destinations.
		if sd.Superstate != "" && !visited[sd.Superstate] {
			queue = append(queue, sd.Superstate)
		}

		for _, t := range sd.Transitions {
			if t.To != "" && !visited[t.To] {
				queue = append(queue, t.To)
			}
		}
	}

	var errs []error
	for _, name := range sortedKeys(d.States) {
		if !visited[name] {
			errs = append(errs, &ValidationError{Key: "states." + name, Reason: "unreachable from the initial state"})
		}
	}
	return errs
}
