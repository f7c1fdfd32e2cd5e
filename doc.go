/*
Package espalier is a hierarchical state machine engine with asynchronous,
strictly ordered trigger dispatch, designed for embedding in services, CLIs,
and workflow automation.

States form a tree: a substate inherits the triggers permitted by its
superstates, and transitions run the exit actions of the source chain and the
entry actions of the destination chain, innermost to outermost and back.
Triggers are dispatched by a single consumer goroutine draining a FIFO queue,
so concurrent producers never interleave transitions.

# Concept

Espalier separates the transition graph (configuration) from the current
state (a StateCell) and from side effects (actions and observers). The engine
owns resolution and ordering; the host application owns where state lives and
what actions do. This hexagonal layout lets the same machine run against an
in-memory cell in tests, a file-backed cell in a CLI, or a Redis-backed cell
shared by service replicas.

# Key Features

  - Hierarchical states: substates inherit behavior, entry and exit chains
    run level by level, and reentry is distinct from staying put.
  - Guarded transitions: predicates select among candidate destinations;
    ambiguity is detected and reported rather than silently resolved.
  - Asynchronous dispatch: Fire enqueues and returns a sequence number,
    FireSync blocks for exactly its own outcome.
  - Pluggable state storage through the ports.StateCell contract.

# Usage

Configure states with the fluent builder, start the dispatcher, and fire
triggers:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/espalier"
		"github.com/aretw0/espalier/pkg/adapters/memory"
	)

	func main() {
		m := espalier.New[string, string](memory.NewSeededCell("Idle"))

		m.Configure("Idle").
			Permit("Play", "Running")

		m.Configure("Running").
			Permit("Stop", "Idle").
			Permit("Pause", "Paused")

		// Paused is nested inside Running: pausing keeps the machine
		// logically in Running, and Stop stays available.
		m.Configure("Paused").
			SubstateOf("Running").
			Permit("Resume", "Running")

		ctx := context.Background()
		m.Start(ctx)
		defer m.Stop()

		if _, err := m.FireSync(ctx, "Play"); err != nil {
			log.Fatal(err)
		}
		log.Println("state:", m.MustState(ctx))
	}

Machines whose definitions live in YAML rather than Go code can be built
through the schema package, which validates a declarative definition and
configures a Machine from it.
*/
package espalier
