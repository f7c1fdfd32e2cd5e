// Package schema declares state machines as data.
//
// A Definition names the states of a machine, their hierarchy, and the
// guarded transitions between them. Definitions are usually parsed from
// YAML documents and turned into runnable machines with Build, which binds
// the guard and action names in the document to Go functions through a
// Registry.
//
// Basic usage:
//
//	def, err := schema.Load("order.yaml")
//	if err != nil {
//	    // Handle parse errors
//	}
//
//	reg := schema.NewRegistry()
//	reg.RegisterGuard("paid", func(args ...any) bool { ... })
//	reg.RegisterEntryAction("notify_warehouse", func(ctx context.Context, tr espalier.Transition[string, string], args ...any) (any, error) { ... })
//
//	machine, err := schema.Build(def, reg, memory.NewSeededCell(def.Initial))
//
// Definitions are validated structurally before any machine is built:
// unknown destination states, superstate cycles, conflicting transition
// kinds, and states unreachable from the initial state are all reported in
// one AggregateError.
package schema
