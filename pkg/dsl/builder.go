package dsl

import (
	"github.com/aretw0/espalier/pkg/schema"
)

// Builder accumulates states and triggers into a schema.Definition.
type Builder struct {
	name     string
	initial  string
	states   map[string]*StateBuilder
	triggers map[string]schema.TriggerDef
}

// New creates a definition builder. The machine name is optional metadata;
// pass "" to omit it.
func New(name string) *Builder {
	return &Builder{
		name:     name,
		states:   make(map[string]*StateBuilder),
		triggers: make(map[string]schema.TriggerDef),
	}
}

// Initial sets the initial state. The first state added is the default.
func (b *Builder) Initial(state string) *Builder {
	b.initial = state
	return b
}

// Trigger declares the positional parameter types a trigger is fired with,
// using the type names schema.ParseType accepts ("string", "int", "float",
// "bool", "any", "[string]").
func (b *Builder) Trigger(name string, paramTypes ...string) *Builder {
	b.triggers[name] = schema.TriggerDef{Params: paramTypes}
	return b
}

// State creates a state in the definition, or returns the existing builder
// when the state was already added.
func (b *Builder) State(name string) *StateBuilder {
	if sb, ok := b.states[name]; ok {
		return sb
	}
	if b.initial == "" {
		b.initial = name
	}
	sb := &StateBuilder{name: name, builder: b}
	b.states[name] = sb
	return sb
}

// Definition assembles and validates the accumulated document.
func (b *Builder) Definition() (*schema.Definition, error) {
	def := &schema.Definition{
		Name:    b.name,
		Initial: b.initial,
		States:  make(map[string]schema.StateDef, len(b.states)),
	}
	if len(b.triggers) > 0 {
		def.Triggers = make(map[string]schema.TriggerDef, len(b.triggers))
		for name, td := range b.triggers {
			def.Triggers[name] = td
		}
	}
	for name, sb := range b.states {
		def.States[name] = sb.def
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// StateBuilder provides a fluent API for configuring one state.
type StateBuilder struct {
	name    string
	def     schema.StateDef
	builder *Builder
}

// SubstateOf places the state under parent in the hierarchy.
func (s *StateBuilder) SubstateOf(parent string) *StateBuilder {
	s.def.Superstate = parent
	return s
}

// OnEntry appends named entry actions, run in the given order.
func (s *StateBuilder) OnEntry(actions ...string) *StateBuilder {
	s.def.OnEntry = append(s.def.OnEntry, actions...)
	return s
}

// OnExit appends named exit actions, run in the given order.
func (s *StateBuilder) OnExit(actions ...string) *StateBuilder {
	s.def.OnExit = append(s.def.OnExit, actions...)
	return s
}

// Permit adds an unguarded transition to the target state.
func (s *StateBuilder) Permit(trigger, to string) *StateBuilder {
	return s.add(schema.TransitionDef{Trigger: trigger, To: to})
}

// PermitIf adds a transition taken only while the named guard passes.
func (s *StateBuilder) PermitIf(trigger, to, guard string) *StateBuilder {
	return s.add(schema.TransitionDef{Trigger: trigger, To: to, Guard: guard})
}

// Dynamic adds a transition whose destination the named resolver computes
// from the fire arguments.
func (s *StateBuilder) Dynamic(trigger, resolver string) *StateBuilder {
	return s.add(schema.TransitionDef{Trigger: trigger, Dynamic: resolver})
}

// DynamicIf is Dynamic gated by the named guard.
func (s *StateBuilder) DynamicIf(trigger, resolver, guard string) *StateBuilder {
	return s.add(schema.TransitionDef{Trigger: trigger, Dynamic: resolver, Guard: guard})
}

// Internal adds a handler that runs the named action without leaving the
// state.
func (s *StateBuilder) Internal(trigger, action string) *StateBuilder {
	return s.add(schema.TransitionDef{Trigger: trigger, Internal: action})
}

// Ignore accepts the trigger as a no-op.
func (s *StateBuilder) Ignore(trigger string) *StateBuilder {
	return s.add(schema.TransitionDef{Trigger: trigger, Ignore: true})
}

// IgnoreIf ignores the trigger only while the named guard passes.
func (s *StateBuilder) IgnoreIf(trigger, guard string) *StateBuilder {
	return s.add(schema.TransitionDef{Trigger: trigger, Ignore: true, Guard: guard})
}

// State starts configuring another state, so whole definitions chain from a
// single expression.
func (s *StateBuilder) State(name string) *StateBuilder {
	return s.builder.State(name)
}

// Definition assembles and validates the document being built.
func (s *StateBuilder) Definition() (*schema.Definition, error) {
	return s.builder.Definition()
}

func (s *StateBuilder) add(t schema.TransitionDef) *StateBuilder {
	s.def.Transitions = append(s.def.Transitions, t)
	return s
}
