package espalier_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/adapters/memory"
)

// blockableMachine has one state with two reentrant triggers: "block" holds
// the worker inside its entry action until gate is closed, "step" counts.
// It lets tests park the single consumer at a known point.
func blockableMachine(gate chan struct{}, entered chan<- struct{}, steps *atomic.Int64) *espalier.Machine[string, string] {
	m := espalier.New[string, string](memory.NewSeededCell("hub"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("hub").
		PermitReentry("block").
		PermitReentry("step").
		OnEntryFrom("block", func(_ context.Context, _ espalier.Transition[string, string], _ ...any) (any, error) {
			entered <- struct{}{}
			<-gate
			return nil, nil
		}).
		OnEntryFrom("step", func(_ context.Context, _ espalier.Transition[string, string], _ ...any) (any, error) {
			steps.Add(1)
			return nil, nil
		})
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMachine_FireRequiresRunningDispatcher(t *testing.T) {
	ctx := context.Background()
	m := espalier.New[string, string](memory.NewSeededCell("a"))
	m.Configure("a").PermitReentry("t")

	if _, err := m.Fire("t"); !errors.Is(err, espalier.ErrNotRunning) {
		t.Errorf("Fire before Start = %v, want ErrNotRunning", err)
	}
	if _, err := m.FireSync(ctx, "t"); !errors.Is(err, espalier.ErrNotRunning) {
		t.Errorf("FireSync before Start = %v, want ErrNotRunning", err)
	}

	// Stop and Wait are safe on a machine that never started.
	m.Stop()
	if err := m.Wait(); err != nil {
		t.Errorf("Wait on never-started machine = %v, want nil", err)
	}

	m.Start(ctx)
	m.Stop()
	if _, err := m.Fire("t"); !errors.Is(err, espalier.ErrNotRunning) {
		t.Errorf("Fire after Stop = %v, want ErrNotRunning", err)
	}
}

func TestMachine_StopAbandonsQueuedInvocations(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	var steps atomic.Int64

	m := blockableMachine(gate, entered, &steps)

	runCtx, cancel := context.WithCancel(context.Background())
	m.Start(runCtx)

	if _, err := m.Fire("block"); err != nil {
		t.Fatalf("Fire(block) failed: %v", err)
	}
	<-entered

	// The worker is parked inside the block action; everything fired now
	// stays queued behind it.
	for i := 0; i < 3; i++ {
		if _, err := m.Fire("step"); err != nil {
			t.Fatalf("Fire(step) failed: %v", err)
		}
	}
	if depth := m.QueueDepth(); depth != 3 {
		t.Fatalf("QueueDepth = %d, want 3", depth)
	}

	// Cancel while the invocation is in progress: it runs to completion,
	// the queued steps are left unprocessed.
	cancel()
	close(gate)

	if err := m.Wait(); err != nil {
		t.Fatalf("Wait = %v, want nil after cooperative stop", err)
	}
	if got := steps.Load(); got != 0 {
		t.Errorf("steps = %d, want 0 (queued work must not run after stop)", got)
	}
	if depth := m.QueueDepth(); depth != 3 {
		t.Errorf("QueueDepth after stop = %d, want 3", depth)
	}

	// A fresh run drains what the previous one abandoned.
	m.Start(context.Background())
	defer m.Stop()

	if _, err := m.FireSync(context.Background(), "step"); err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}
	if got := steps.Load(); got != 4 {
		t.Errorf("steps = %d, want 4 (three abandoned plus the sync one)", got)
	}
	if depth := m.QueueDepth(); depth != 0 {
		t.Errorf("QueueDepth = %d, want 0", depth)
	}
}

func TestMachine_StartAgainReplacesRun(t *testing.T) {
	ctx := context.Background()
	var steps atomic.Int64

	m := blockableMachine(make(chan struct{}), make(chan struct{}, 1), &steps)

	m.Start(ctx)
	m.Start(ctx) // tears down the first worker, starts a second
	defer m.Stop()

	if _, err := m.FireSync(ctx, "step"); err != nil {
		t.Fatalf("FireSync failed: %v", err)
	}
	if got := steps.Load(); got != 1 {
		t.Errorf("steps = %d, want exactly 1 (no duplicate workers)", got)
	}
}

func TestMachine_FireSyncAbandonedByCaller(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	var steps atomic.Int64

	m := blockableMachine(gate, entered, &steps)
	m.Start(context.Background())
	defer m.Stop()

	syncCtx, cancelSync := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := m.FireSync(syncCtx, "block")
		result <- err
	}()

	<-entered
	cancelSync()

	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned FireSync = %v, want context.Canceled", err)
	}

	// The abandoned rendezvous must not wedge the worker.
	close(gate)
	if _, err := m.FireSync(context.Background(), "step"); err != nil {
		t.Fatalf("FireSync after abandonment failed: %v", err)
	}
	if got := steps.Load(); got != 1 {
		t.Errorf("steps = %d, want 1", got)
	}
}

func TestMachine_FireSyncReportsDispatcherShutdown(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	var steps atomic.Int64

	m := blockableMachine(gate, entered, &steps)

	runCtx, cancel := context.WithCancel(context.Background())
	m.Start(runCtx)

	if _, err := m.Fire("block"); err != nil {
		t.Fatalf("Fire(block) failed: %v", err)
	}
	<-entered

	result := make(chan error, 1)
	go func() {
		_, err := m.FireSync(context.Background(), "step")
		result <- err
	}()
	waitFor(t, "the sync invocation to queue", func() bool { return m.QueueDepth() == 1 })

	// Shut down before the queued rendezvous is reached.
	cancel()
	close(gate)

	if err := <-result; !errors.Is(err, espalier.ErrStopped) {
		t.Fatalf("FireSync across shutdown = %v, want ErrStopped", err)
	}
	if got := steps.Load(); got != 0 {
		t.Errorf("steps = %d, want 0", got)
	}
	m.Stop()
}

func TestMachine_RunReturnsFatalError(t *testing.T) {
	always := func(args ...any) bool { return true }
	m := espalier.New[string, string](memory.NewSeededCell("a"),
		espalier.WithPollInterval[string, string](time.Millisecond))
	m.Configure("a").
		PermitIf("t", "b", always, "first").
		PermitIf("t", "c", always, "second")
	m.Configure("b")
	m.Configure("c")

	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(context.Background())() }()

	waitFor(t, "the dispatcher to accept fires", func() bool {
		_, err := m.Fire("t")
		return err == nil
	})

	var fatal *espalier.FatalDispatchError
	select {
	case err := <-runErr:
		if !errors.As(err, &fatal) {
			t.Fatalf("Run = %v, want *FatalDispatchError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the fatal error")
	}
}

func TestMachine_RunStopsWhenContextEnds(t *testing.T) {
	var steps atomic.Int64
	m := blockableMachine(make(chan struct{}), make(chan struct{}, 1), &steps)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx)() }()

	waitFor(t, "the dispatcher to accept fires", func() bool {
		_, err := m.FireSync(context.Background(), "step")
		return err == nil
	})

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run = %v, want nil on context end", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
