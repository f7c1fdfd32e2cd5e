package schema

import (
	"fmt"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/ports"
)

// Build validates def and constructs a machine from it, binding the guard,
// action, and resolver names in the document to functions registered in
// reg. Current state lives in cell; initial seeding is the caller's choice
// (memory.NewSeededCell(def.Initial) for fresh machines, an already
// populated cell to resume).
func Build(def *Definition, reg *Registry, cell ports.StateCell[string], opts ...espalier.Option[string, string]) (*espalier.Machine[string, string], error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = NewRegistry()
	}

	m := espalier.New(cell, opts...)

	for _, trigger := range sortedKeys(def.Triggers) {
		types, err := ParseTypes(def.Triggers[trigger].Params)
		if err != nil {
			return nil, &ValidationError{Key: "triggers." + trigger, Reason: err.Error()}
		}
		m.SetTriggerParameters(trigger, types...)
	}

	for _, name := range def.StateNames() {
		sd := def.States[name]
		cfg := m.Configure(name)

		if sd.Superstate != "" {
			cfg.SubstateOf(sd.Superstate)
		}

		for _, action := range sd.OnEntry {
			fn, ok := reg.entry(action)
			if !ok {
				return nil, &ValidationError{Key: "states." + name + ".on_entry", Reason: fmt.Sprintf("entry action %q not registered", action)}
			}
			cfg.OnEntry(fn)
		}
		for _, action := range sd.OnExit {
			fn, ok := reg.exit(action)
			if !ok {
				return nil, &ValidationError{Key: "states." + name + ".on_exit", Reason: fmt.Sprintf("exit action %q not registered", action)}
			}
			cfg.OnExit(fn)
		}

		for i, t := range sd.Transitions {
			if err := bindTransition(cfg, reg, name, i, t); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func bindTransition(cfg *espalier.StateConfig[string, string], reg *Registry, state string, idx int, t TransitionDef) error {
	key := fmt.Sprintf("states.%s.transitions[%d]", state, idx)

	var guard Guard
	if t.Guard != "" {
		fn, ok := reg.guard(t.Guard)
		if !ok {
			return &ValidationError{Key: key + ".guard", Reason: fmt.Sprintf("guard %q not registered", t.Guard)}
		}
		guard = fn
	}

	switch {
	case t.Ignore:
		if guard != nil {
			cfg.IgnoreIf(t.Trigger, guard, t.Guard)
		} else {
			cfg.Ignore(t.Trigger)
		}

	case t.Internal != "":
		fn, ok := reg.internal(t.Internal)
		if !ok {
			return &ValidationError{Key: key + ".internal", Reason: fmt.Sprintf("internal action %q not registered", t.Internal)}
		}
		cfg.InternalTransition(t.Trigger, fn)

	case t.Dynamic != "":
		fn, ok := reg.resolver(t.Dynamic)
		if !ok {
			return &ValidationError{Key: key + ".dynamic", Reason: fmt.Sprintf("resolver %q not registered", t.Dynamic)}
		}
		if guard != nil {
			cfg.PermitDynamicIf(t.Trigger, fn, guard, t.Guard)
		} else {
			cfg.PermitDynamic(t.Trigger, fn)
		}

	case t.To == state:
		if guard != nil {
			cfg.PermitReentryIf(t.Trigger, guard, t.Guard)
		} else {
			cfg.PermitReentry(t.Trigger)
		}

	default:
		if guard != nil {
			cfg.PermitIf(t.Trigger, t.To, guard, t.Guard)
		} else {
			cfg.Permit(t.Trigger, t.To)
		}
	}

	return nil
}
