package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/adapters/memory"
)

func testRegistry(quorum bool) *Registry {
	reg := NewRegistry()
	reg.RegisterGuard("quorum_reached", func(args ...any) bool { return quorum })
	reg.RegisterEntryAction("notify_reviewer", func(ctx context.Context, tr espalier.Transition[string, string], args ...any) (any, error) {
		return "notified", nil
	})
	reg.RegisterExitAction("clear_reviewer", func(ctx context.Context, tr espalier.Transition[string, string]) error {
		return nil
	})
	reg.RegisterInternalAction("record_assignee", func(ctx context.Context, tr espalier.Transition[string, string], args ...any) error {
		return nil
	})
	reg.RegisterResolver("pick_lane", func(args ...any) (string, error) {
		if len(args) > 0 && args[0] == "b" {
			return "lane_b", nil
		}
		return "lane_a", nil
	})
	return reg
}

func TestBuild_RunsDefinition(t *testing.T) {
	def, err := Parse([]byte(orderYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ctx := context.Background()
	m, err := Build(def, testRegistry(true), memory.NewSeededCell(def.Initial))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	m.Start(ctx)
	defer m.Stop()

	out, err := m.FireSync(ctx, "submit")
	if err != nil {
		t.Fatalf("FireSync(submit) error = %v", err)
	}
	if !out.Transitioned || out.Transition.Destination != "review" {
		t.Fatalf("submit outcome = %+v, want transition to review", out)
	}
	if out.Value != "notified" {
		t.Errorf("entry action value = %v, want %q", out.Value, "notified")
	}

	if _, err := m.FireSync(ctx, "approve"); err != nil {
		t.Fatalf("FireSync(approve) error = %v", err)
	}

	out, err = m.FireSync(ctx, "assign", "ada", 3)
	if err != nil {
		t.Fatalf("FireSync(assign) error = %v", err)
	}
	if !out.Handled || out.Transitioned {
		t.Fatalf("assign outcome = %+v, want handled without transition", out)
	}

	out, err = m.FireSync(ctx, "route", "b")
	if err != nil {
		t.Fatalf("FireSync(route) error = %v", err)
	}
	if out.Transition.Destination != "lane_b" {
		t.Errorf("route destination = %q, want lane_b", out.Transition.Destination)
	}

	state, err := m.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state != "lane_b" {
		t.Errorf("state = %q, want lane_b", state)
	}

	ok, err := m.IsInState(ctx, "active")
	if err != nil {
		t.Fatalf("IsInState() error = %v", err)
	}
	if !ok {
		t.Error("lane_b should count as being in active")
	}
}

func TestBuild_GuardRejection(t *testing.T) {
	def, err := Parse([]byte(orderYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ctx := context.Background()
	m, err := Build(def, testRegistry(false), memory.NewSeededCell("review"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	m.Start(ctx)
	defer m.Stop()

	out, err := m.FireSync(ctx, "approve")
	if err == nil {
		t.Fatal("FireSync(approve) should be rejected when the guard is unmet")
	}
	var iterr *espalier.InvalidTriggerError
	if !errors.As(err, &iterr) {
		t.Fatalf("error = %T, want *espalier.InvalidTriggerError", err)
	}
	if len(iterr.UnmetGuards) != 1 || iterr.UnmetGuards[0] != "quorum_reached" {
		t.Errorf("UnmetGuards = %v, want [quorum_reached]", iterr.UnmetGuards)
	}
	if out.Handled {
		t.Error("rejected trigger must not be handled")
	}
}

func TestBuild_UnregisteredGuard(t *testing.T) {
	def, err := Parse([]byte(orderYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	reg := testRegistry(true)
	reg.mu.Lock()
	delete(reg.guards, "quorum_reached")
	reg.mu.Unlock()

	_, err = Build(def, reg, memory.NewSeededCell(def.Initial))
	if err == nil {
		t.Fatal("Build() should fail for unregistered guard")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %T, want *ValidationError", err)
	}
	if verr.Key != "states.review.transitions[0].guard" {
		t.Errorf("Key = %q", verr.Key)
	}
}

func TestBuild_InvalidDefinition(t *testing.T) {
	def := &Definition{Initial: "missing", States: map[string]StateDef{"a": {}}}

	_, err := Build(def, NewRegistry(), memory.NewSeededCell("a"))
	if err == nil {
		t.Fatal("Build() should fail validation")
	}
	if ValidationErrors(err) == nil {
		t.Fatalf("error = %T, want *AggregateError", err)
	}
}

func TestBuild_RegistersTriggerParams(t *testing.T) {
	def, err := Parse([]byte(orderYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	m, err := Build(def, testRegistry(true), memory.NewSeededCell(def.Initial))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	ps, ok := m.TriggerParameters("assign")
	if !ok {
		t.Fatal("assign should have registered parameters")
	}
	if ps.Arity() != 2 {
		t.Errorf("Arity() = %d, want 2", ps.Arity())
	}
}
