/*
Package dsl provides a fluent Go builder for schema definitions.

It allows developers to assemble machine definitions in code instead of YAML
documents, keeping type-checking and IDE support while producing the same
schema.Definition that Parse returns. This is particularly useful for dynamic
definition generation and for tests.

Example usage:

	def, err := dsl.New("orders").
		State("draft").
		PermitIf("submit", "review", "is_complete").
		State("review").
		OnEntry("notify_reviewers").
		Permit("approve", "published").
		Permit("reject", "draft").
		State("published").
		Definition()
	if err != nil {
		// ...
	}

	// The definition compiles like any parsed document.
	m, err := schema.Build(def, reg, memory.NewSeededCell(def.Initial))
*/
package dsl
