package espalier_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/schema"
)

// ExampleNew_definition demonstrates declaring a machine as YAML data and
// binding the guard and action names it references to Go functions.
func ExampleNew_definition() {
	const doc = `
initial: draft
states:
  draft:
    transitions:
      - trigger: submit
        to: review
        guard: has_content
  review:
    on_entry: [notify]
`
	// 1. Parse the declarative definition
	def, err := schema.Parse([]byte(doc))
	if err != nil {
		log.Fatal(err)
	}

	// 2. Bind the names the definition references
	reg := schema.NewRegistry()
	reg.RegisterGuard("has_content", func(args ...any) bool {
		return len(args) > 0
	})
	reg.RegisterEntryAction("notify", func(_ context.Context, tr espalier.Transition[string, string], _ ...any) (any, error) {
		fmt.Printf("review queue notified (%s)\n", tr.Trigger)
		return nil, nil
	})

	// 3. Compile it onto a state cell
	m, err := schema.Build(def, reg, memory.NewSeededCell(def.Initial))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	out, err := m.FireSync(ctx, "submit", "chapter one")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("state:", out.Transition.Destination)

	// Output:
	// review queue notified (submit)
	// state: review
}
