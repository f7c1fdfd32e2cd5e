package espalier_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/adapters/memory"
)

// recorder collects action and observer callbacks in invocation order.
type recorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorder) add(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *recorder) entry(name string) espalier.EntryFunc[string, string] {
	return func(_ context.Context, _ espalier.Transition[string, string], _ ...any) (any, error) {
		r.add(name)
		return nil, nil
	}
}

func (r *recorder) exit(name string) espalier.ExitFunc[string, string] {
	return func(_ context.Context, _ espalier.Transition[string, string]) error {
		r.add(name)
		return nil
	}
}

// playerMachine is the pause scenario from the dispatcher's test plan:
// Paused nests inside Running, Pause is only permitted from Running, and
// Paused additionally permits Pause as a reentry.
func playerMachine(rec *recorder, initial string) *espalier.Machine[string, string] {
	m := espalier.New[string, string](memory.NewSeededCell(initial),
		espalier.WithPollInterval[string, string](time.Millisecond))

	m.Configure("Idle").
		Permit("Play", "Running")
	m.Configure("Running").
		Permit("Pause", "Paused").
		Permit("Stop", "Idle").
		OnExit(rec.exit("exit:Running"))
	m.Configure("Paused").
		SubstateOf("Running").
		PermitReentry("Pause").
		Permit("Resume", "Running").
		OnEntry(rec.entry("enter:Paused")).
		OnExit(rec.exit("exit:Paused"))

	return m
}

func TestMachine_PauseFromIdleIsRejected(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	m := playerMachine(rec, "Idle")

	var rejection espalier.RejectionEvent[string, string]
	rejected := make(chan struct{})
	m.OnRejected(func(_ context.Context, e espalier.RejectionEvent[string, string]) {
		rejection = e
		close(rejected)
	})

	m.Start(ctx)
	defer m.Stop()

	seq, err := m.Fire("Pause")
	if err != nil {
		t.Fatalf("Fire failed: %v", err)
	}

	select {
	case <-rejected:
	case <-time.After(2 * time.Second):
		t.Fatal("rejection notification never arrived")
	}

	if rejection.Seq != seq {
		t.Errorf("rejection seq = %d, want %d", rejection.Seq, seq)
	}
	if rejection.State != "Idle" || rejection.Trigger != "Pause" {
		t.Errorf("rejection = %+v, want state Idle trigger Pause", rejection)
	}
	if rejection.GuardUnmet() {
		t.Error("Pause is unconfigured for Idle, not guarded off")
	}
	var invalid *espalier.InvalidTriggerError
	if !errors.As(rejection.Err, &invalid) {
		t.Errorf("rejection error = %T, want *InvalidTriggerError", rejection.Err)
	}

	state, err := m.State(ctx)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state != "Idle" {
		t.Errorf("state = %q, rejection must not move the machine", state)
	}
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("no actions should run on rejection, got %v", got)
	}
}

func TestMachine_PauseIntoSubstateSkipsSuperstateExit(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	m := playerMachine(rec, "Running")
	m.Start(ctx)
	defer m.Stop()

	out, err := m.FireSync(ctx, "Pause")
	if err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}
	if !out.Transitioned || out.Transition.Destination != "Paused" {
		t.Fatalf("outcome = %+v, want transition to Paused", out)
	}

	// Paused nests inside Running, so Running is not exited: its subtree
	// contains the destination.
	want := []string{"enter:Paused"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}

	state, _ := m.State(ctx)
	if state != "Paused" {
		t.Fatalf("state = %q, want Paused", state)
	}
	in, err := m.IsInState(ctx, "Running")
	if err != nil || !in {
		t.Errorf("Paused should still count as being in Running (err=%v)", err)
	}
}

func TestMachine_PauseRunsExitThenEntry(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}

	// Flat variant: Running and Paused are unrelated states, so pausing
	// exits Running before entering Paused.
	m := espalier.New[string, string](memory.NewSeededCell("Running"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("Running").
		Permit("Pause", "Paused").
		OnExit(rec.exit("E1"))
	m.Configure("Paused").
		PermitReentry("Pause").
		OnEntry(rec.entry("E2")).
		OnExit(rec.exit("exit:Paused"))

	m.Start(ctx)
	defer m.Stop()

	if _, err := m.FireSync(ctx, "Pause"); err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}
	if got := rec.snapshot(); !equalStrings(got, []string{"E1", "E2"}) {
		t.Fatalf("actions = %v, want [E1 E2]", got)
	}
	if state, _ := m.State(ctx); state != "Paused" {
		t.Fatalf("state = %q, want Paused", state)
	}

	// Pausing again targets the current state: a reentry that runs only
	// Paused's own exit and entry, never Running's exit.
	out, err := m.FireSync(ctx, "Pause")
	if err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}
	if !out.Transition.IsReentry() {
		t.Fatalf("outcome = %+v, want a reentry", out)
	}
	want := []string{"E1", "E2", "exit:Paused", "E2"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

func TestMachine_PauseFromPausedIsReentry(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	m := playerMachine(rec, "Paused")
	m.Start(ctx)
	defer m.Stop()

	out, err := m.FireSync(ctx, "Pause")
	if err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}
	if !out.Transition.IsReentry() {
		t.Fatalf("outcome = %+v, want a reentry", out)
	}

	// Only Paused's own exit and entry run; Running's exit never fires.
	want := []string{"exit:Paused", "enter:Paused"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

func TestMachine_ExitEntryAcrossUnrelatedStates(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	m := espalier.New[string, string](memory.NewSeededCell("a2"),
		espalier.WithPollInterval[string, string](time.Millisecond))

	m.Configure("a1").OnExit(rec.exit("exit:a1")).OnEntry(rec.entry("enter:a1"))
	m.Configure("a2").SubstateOf("a1").
		OnExit(rec.exit("exit:a2")).OnEntry(rec.entry("enter:a2")).
		Permit("cross", "b2")
	m.Configure("b1").OnExit(rec.exit("exit:b1")).OnEntry(rec.entry("enter:b1"))
	m.Configure("b2").SubstateOf("b1").
		OnExit(rec.exit("exit:b2")).OnEntry(rec.entry("enter:b2"))

	m.Start(ctx)
	defer m.Stop()

	if _, err := m.FireSync(ctx, "cross"); err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}

	// Exits leaf to root, then entries root to leaf, nothing twice.
	want := []string{"exit:a2", "exit:a1", "enter:b1", "enter:b2"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

func TestMachine_ConcurrentProducersSerialize(t *testing.T) {
	const producers = 32

	ctx := context.Background()
	var mutations atomic.Int64

	m := espalier.New[string, string](memory.NewSeededCell("on"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("on").
		PermitReentry("tick").
		OnEntry(func(_ context.Context, _ espalier.Transition[string, string], _ ...any) (any, error) {
			mutations.Add(1)
			return nil, nil
		}).
		Permit("flush", "done")
	m.Configure("done")

	var seqs []uint64
	m.OnTransitioned(func(_ context.Context, e espalier.TransitionEvent[string, string]) {
		seqs = append(seqs, e.Seq)
	})

	m.Start(ctx)
	defer m.Stop()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Fire("tick"); err != nil {
				t.Errorf("Fire failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// The sentinel enqueues after every producer returned, so when it
	// completes all ticks have been processed.
	if _, err := m.FireSync(ctx, "flush"); err != nil {
		t.Fatalf("FireSync(flush) failed: %v", err)
	}

	if got := mutations.Load(); got != producers {
		t.Errorf("mutations = %d, want %d", got, producers)
	}
	if len(seqs) != producers+1 {
		t.Fatalf("notifications = %d, want %d", len(seqs), producers+1)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence numbers not strictly increasing: %v", seqs)
		}
	}
	// Sequence numbers are assigned at enqueue and processed FIFO, so the
	// observed order is exactly 1..N+1.
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("seqs[%d] = %d, want %d (full %v)", i, seq, i+1, seqs)
		}
	}
}

func TestMachine_AmbiguousGuardsAreFatal(t *testing.T) {
	ctx := context.Background()
	always := func(args ...any) bool { return true }

	m := espalier.New[string, string](memory.NewSeededCell("a"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("a").
		PermitIf("t", "b", always, "first").
		PermitIf("t", "c", always, "second")
	m.Configure("b")
	m.Configure("c")

	m.Start(ctx)
	defer m.Stop()

	_, err := m.FireSync(ctx, "t")
	if err == nil {
		t.Fatal("ambiguous resolution must fail, not pick a behavior")
	}
	if !errors.Is(err, espalier.ErrAmbiguousTransition) {
		t.Errorf("FireSync error = %v, want ErrAmbiguousTransition", err)
	}

	// Ambiguity is a configuration defect observed late: it takes the
	// dispatcher down.
	var fatal *espalier.FatalDispatchError
	if werr := m.Wait(); !errors.As(werr, &fatal) {
		t.Fatalf("Wait = %v, want *FatalDispatchError", werr)
	}
	if _, err := m.Fire("t"); !errors.Is(err, espalier.ErrNotRunning) {
		t.Errorf("Fire after fatal error = %v, want ErrNotRunning", err)
	}

	state, _ := m.State(ctx)
	if state != "a" {
		t.Errorf("state = %q, ambiguity must not move the machine", state)
	}
}

func TestMachine_MalformedArgumentsFailAtDispatchTime(t *testing.T) {
	ctx := context.Background()

	m := espalier.New[string, string](memory.NewSeededCell("a"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.SetTriggerParameters("set", espalier.Args1[string]()...)
	m.Configure("a").Permit("set", "b")
	m.Configure("b")

	m.Start(ctx)
	defer m.Stop()

	// The malformed call is accepted and sequence-numbered; nothing fails
	// at enqueue time.
	seq, err := m.Fire("set", 42)
	if err != nil {
		t.Fatalf("Fire must accept the malformed call, got %v", err)
	}
	if seq == 0 {
		t.Fatal("Fire must assign a sequence number")
	}

	err = m.Wait()
	var fatal *espalier.FatalDispatchError
	if !errors.As(err, &fatal) {
		t.Fatalf("Wait = %v, want *FatalDispatchError", err)
	}
	if fatal.Seq != seq {
		t.Errorf("fatal seq = %d, want %d", fatal.Seq, seq)
	}
	var shape *espalier.ArgumentShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("fatal error should wrap *ArgumentShapeError, got %v", err)
	}

	state, _ := m.State(ctx)
	if state != "a" {
		t.Errorf("state = %q, want unchanged a", state)
	}
}

func TestMachine_WellFormedArgumentsReachActions(t *testing.T) {
	ctx := context.Background()

	m := espalier.New[string, string](memory.NewSeededCell("a"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.SetTriggerParameters("set", espalier.Args2[string, int]()...)
	m.Configure("a").Permit("set", "b")
	m.Configure("b").
		OnEntry(func(_ context.Context, _ espalier.Transition[string, string], args ...any) (any, error) {
			name, _ := espalier.ArgAt[string](args, 0)
			count, _ := espalier.ArgAt[int](args, 1)
			return fmt.Sprintf("%s/%d", name, count), nil
		})

	m.Start(ctx)
	defer m.Stop()

	out, err := m.FireSync(ctx, "set", "lane", 3)
	if err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}
	if out.Value != "lane/3" {
		t.Errorf("entry value = %v, want lane/3", out.Value)
	}
}

func TestMachine_UnhandledTriggerPolicyOverride(t *testing.T) {
	ctx := context.Background()

	m := espalier.New[string, string](memory.NewSeededCell("a"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("a")

	var policyCalls atomic.Int64
	m.OnUnhandledTrigger(func(_ context.Context, state, trigger string, unmetGuards []string) error {
		policyCalls.Add(1)
		return nil
	})

	var rejection espalier.RejectionEvent[string, string]
	m.OnRejected(func(_ context.Context, e espalier.RejectionEvent[string, string]) {
		rejection = e
	})

	m.Start(ctx)
	defer m.Stop()

	// A swallowing policy turns the unhandled trigger into a no-op: no
	// error, and the dispatcher keeps running.
	out, err := m.FireSync(ctx, "nothing")
	if err != nil {
		t.Fatalf("FireSync = %v, want nil from a swallowing policy", err)
	}
	if out.Handled {
		t.Error("outcome should report the trigger as unhandled")
	}
	if policyCalls.Load() != 1 {
		t.Errorf("policy calls = %d, want 1", policyCalls.Load())
	}
	if rejection.Err != nil {
		t.Errorf("rejection.Err = %v, want nil when the policy swallows", rejection.Err)
	}
	if rejection.Trigger != "nothing" {
		t.Errorf("rejection trigger = %q, want nothing", rejection.Trigger)
	}
}

func TestMachine_GuardUnmetRejectionNamesGuards(t *testing.T) {
	ctx := context.Background()

	m := espalier.New[string, string](memory.NewSeededCell("a"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("a").
		PermitIf("go", "b", func(args ...any) bool { return false }, "door unlocked")
	m.Configure("b")

	var rejection espalier.RejectionEvent[string, string]
	m.OnRejected(func(_ context.Context, e espalier.RejectionEvent[string, string]) {
		rejection = e
	})

	m.Start(ctx)
	defer m.Stop()

	_, err := m.FireSync(ctx, "go")
	var invalid *espalier.InvalidTriggerError
	if !errors.As(err, &invalid) {
		t.Fatalf("FireSync error = %v, want *InvalidTriggerError", err)
	}
	if !invalid.GuardUnmet() {
		t.Error("rejection should be attributed to unmet guards")
	}
	if !rejection.GuardUnmet() || !equalStrings(rejection.UnmetGuards, []string{"door unlocked"}) {
		t.Errorf("rejection = %+v, want unmet guard \"door unlocked\"", rejection)
	}
}

func TestMachine_DynamicDestination(t *testing.T) {
	ctx := context.Background()

	m := espalier.New[string, string](memory.NewSeededCell("router"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("router").
		PermitDynamic("route", func(args ...any) (string, error) {
			lane, ok := espalier.ArgAt[string](args, 0)
			if !ok {
				return "", errors.New("lane argument required")
			}
			return "lane_" + lane, nil
		})
	m.Configure("lane_a")
	m.Configure("lane_b")

	m.Start(ctx)
	defer m.Stop()

	out, err := m.FireSync(ctx, "route", "b")
	if err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}
	if out.Transition.Destination != "lane_b" {
		t.Errorf("destination = %q, want lane_b", out.Transition.Destination)
	}
}

func TestMachine_InternalTransitionKeepsState(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}

	m := espalier.New[string, string](memory.NewSeededCell("a"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("a").
		OnEntry(rec.entry("enter:a")).
		OnExit(rec.exit("exit:a")).
		InternalTransition("poke", func(_ context.Context, tr espalier.Transition[string, string], args ...any) error {
			rec.add("action:poke")
			return nil
		}).
		Ignore("noise")

	var transitions atomic.Int64
	m.OnTransitioned(func(_ context.Context, _ espalier.TransitionEvent[string, string]) {
		transitions.Add(1)
	})

	m.Start(ctx)
	defer m.Stop()

	out, err := m.FireSync(ctx, "poke")
	if err != nil {
		t.Fatalf("FireSync(poke) failed: %v", err)
	}
	if !out.Handled || out.Transitioned {
		t.Fatalf("outcome = %+v, want handled without transition", out)
	}

	out, err = m.FireSync(ctx, "noise")
	if err != nil {
		t.Fatalf("FireSync(noise) failed: %v", err)
	}
	if !out.Handled || out.Transitioned {
		t.Fatalf("outcome = %+v, want handled without transition", out)
	}

	// Neither invocation runs exit or entry actions or notifies
	// transition observers.
	if got := rec.snapshot(); !equalStrings(got, []string{"action:poke"}) {
		t.Errorf("actions = %v, want only the internal action", got)
	}
	if transitions.Load() != 0 {
		t.Errorf("transition notifications = %d, want 0", transitions.Load())
	}
}

func TestMachine_ObserversRunInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}

	m := espalier.New[string, string](memory.NewSeededCell("a"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("a").Permit("go", "b")
	m.Configure("b")

	for _, name := range []string{"first", "second", "third"} {
		n := name
		m.OnTransitioned(func(_ context.Context, _ espalier.TransitionEvent[string, string]) {
			rec.add(n)
		})
	}

	m.Start(ctx)
	defer m.Stop()

	if _, err := m.FireSync(ctx, "go"); err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}
	if got := rec.snapshot(); !equalStrings(got, []string{"first", "second", "third"}) {
		t.Errorf("observer order = %v, want registration order", got)
	}
}

func TestMachine_ActionPanicTerminatesDispatch(t *testing.T) {
	ctx := context.Background()

	m := espalier.New[string, string](memory.NewSeededCell("a"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("a").Permit("go", "b")
	m.Configure("b").
		OnEntry(func(_ context.Context, _ espalier.Transition[string, string], _ ...any) (any, error) {
			panic("entry exploded")
		})

	m.Start(ctx)
	defer m.Stop()

	_, err := m.FireSync(ctx, "go")
	if err == nil {
		t.Fatal("panicking action must fail the invocation")
	}

	var fatal *espalier.FatalDispatchError
	if werr := m.Wait(); !errors.As(werr, &fatal) {
		t.Fatalf("Wait = %v, want *FatalDispatchError", werr)
	}
}

func TestMachine_IntrospectionHelpers(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	m := playerMachine(rec, "Paused")

	// Introspection works without a running dispatcher.
	ok, err := m.CanFire(ctx, "Resume")
	if err != nil || !ok {
		t.Errorf("CanFire(Resume) = %v, %v, want true", ok, err)
	}
	ok, err = m.CanFire(ctx, "Play")
	if err != nil || ok {
		t.Errorf("CanFire(Play) = %v, %v, want false", ok, err)
	}

	triggers, err := m.PermittedTriggers(ctx)
	if err != nil {
		t.Fatalf("PermittedTriggers failed: %v", err)
	}
	want := map[string]bool{"Pause": true, "Resume": true, "Stop": true}
	if len(triggers) != len(want) {
		t.Fatalf("PermittedTriggers = %v, want %v", triggers, want)
	}
	for _, trigger := range triggers {
		if !want[trigger] {
			t.Errorf("unexpected trigger %q", trigger)
		}
	}

	spec, ok := m.TriggerParameters("Pause")
	if ok || spec != nil {
		t.Error("Pause has no registered parameters")
	}
}

func equalStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
