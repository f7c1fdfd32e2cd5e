package espalier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/aretw0/espalier/pkg/ports"
)

// UnhandledTriggerFunc decides what happens when no behavior handles a
// trigger. unmetGuards holds the descriptions of guards that rejected the
// trigger; it is empty when the trigger is not configured for the state
// chain at all. Returning an error fails the invocation (the default);
// returning nil swallows the rejection.
type UnhandledTriggerFunc[S, T comparable] func(ctx context.Context, state S, trigger T, unmetGuards []string) error

// Machine is a hierarchical state machine with asynchronous, ordered trigger
// dispatch. States and triggers are caller-supplied comparable values.
//
// Current state lives in the injected ports.StateCell, never in the Machine:
// the cell is read at the start of every dispatch cycle and written after
// exit actions complete. Configuration (Configure, SetTriggerParameters,
// observer registration) must finish before Start and is not safe
// concurrently with a running dispatcher.
type Machine[S, T comparable] struct {
	cell   ports.StateCell[S]
	nodes  map[S]*stateNode[S, T]
	params map[T]*ParameterSpec

	obs       observers[S, T]
	unhandled UnhandledTriggerFunc[S, T]
	disp      *dispatcher[S, T]
	logger    *slog.Logger

	pollInterval time.Duration
}

// Option configures a Machine at construction time.
type Option[S, T comparable] func(*Machine[S, T])

// WithLogger sets a structured logger. The default discards all output.
func WithLogger[S, T comparable](logger *slog.Logger) Option[S, T] {
	return func(m *Machine[S, T]) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPollInterval tunes the worker's idle backoff between queue checks.
func WithPollInterval[S, T comparable](d time.Duration) Option[S, T] {
	return func(m *Machine[S, T]) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// New builds a Machine around the state cell that owns current state.
// It panics with a *ConfigurationError when cell is nil.
func New[S, T comparable](cell ports.StateCell[S], opts ...Option[S, T]) *Machine[S, T] {
	if cell == nil {
		panic(&ConfigurationError{Reason: "nil state cell"})
	}
	m := &Machine[S, T]{
		cell:   cell,
		nodes:  make(map[S]*stateNode[S, T]),
		params: make(map[T]*ParameterSpec),
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	m.unhandled = m.defaultUnhandledTrigger
	for _, opt := range opts {
		opt(m)
	}
	m.disp = newDispatcher(m.processInvocation, m.logger.With("component", "dispatcher"), m.pollInterval)
	return m
}

// Configure returns the fluent builder for state, creating its node on
// first reference.
func (m *Machine[S, T]) Configure(state S) *StateConfig[S, T] {
	return &StateConfig[S, T]{machine: m, node: m.node(state)}
}

// SetTriggerParameters registers the argument shape trigger must be fired
// with. Registering the same trigger twice panics with a
// *ConfigurationError.
func (m *Machine[S, T]) SetTriggerParameters(trigger T, types ...reflect.Type) {
	if _, exists := m.params[trigger]; exists {
		panic(&ConfigurationError{Trigger: trigger, Reason: "trigger parameters already registered"})
	}
	m.params[trigger] = &ParameterSpec{types: types}
}

// TriggerParameters returns the ParameterSpec registered for trigger, if
// any.
func (m *Machine[S, T]) TriggerParameters(trigger T) (*ParameterSpec, bool) {
	ps, ok := m.params[trigger]
	return ps, ok
}

// node returns the configured representation for state, creating and
// retaining it on first reference. Configuration-time only.
func (m *Machine[S, T]) node(state S) *stateNode[S, T] {
	n, ok := m.nodes[state]
	if !ok {
		n = newStateNode[S, T](state)
		m.nodes[state] = n
	}
	return n
}

// lookup resolves state without mutating the node map, so it is safe on the
// dispatch path and for introspection while the machine runs. Unconfigured
// states get an ephemeral empty node.
func (m *Machine[S, T]) lookup(state S) *stateNode[S, T] {
	if n, ok := m.nodes[state]; ok {
		return n
	}
	return newStateNode[S, T](state)
}

// State reads the current state from the cell.
func (m *Machine[S, T]) State(ctx context.Context) (S, error) {
	return m.cell.Read(ctx)
}

// MustState is State for cells that cannot fail; it panics on error.
func (m *Machine[S, T]) MustState(ctx context.Context) S {
	s, err := m.cell.Read(ctx)
	if err != nil {
		panic(err)
	}
	return s
}

// IsInState reports whether the machine is in state or nested anywhere
// beneath it.
func (m *Machine[S, T]) IsInState(ctx context.Context, state S) (bool, error) {
	current, err := m.cell.Read(ctx)
	if err != nil {
		return false, err
	}
	return m.lookup(current).isIncludedIn(state), nil
}

// CanFire reports whether trigger currently resolves to exactly one
// guard-satisfied behavior.
func (m *Machine[S, T]) CanFire(ctx context.Context, trigger T, args ...any) (bool, error) {
	current, err := m.cell.Read(ctx)
	if err != nil {
		return false, err
	}
	return m.lookup(current).canHandle(trigger, args), nil
}

// PermittedTriggers returns the triggers fireable from the current state,
// including those inherited from superstates.
func (m *Machine[S, T]) PermittedTriggers(ctx context.Context, args ...any) ([]T, error) {
	current, err := m.cell.Read(ctx)
	if err != nil {
		return nil, err
	}
	return m.lookup(current).permittedTriggers(args), nil
}

// OnTransitioned appends observers invoked synchronously after every
// completed transition, in registration order.
func (m *Machine[S, T]) OnTransitioned(fns ...TransitionFunc[S, T]) {
	m.obs.transitioned = append(m.obs.transitioned, fns...)
}

// OnRejected appends observers invoked synchronously for every rejected
// trigger, in registration order.
func (m *Machine[S, T]) OnRejected(fns ...RejectionFunc[S, T]) {
	m.obs.rejected = append(m.obs.rejected, fns...)
}

// OnUnhandledTrigger replaces the unhandled-trigger policy. The default
// fails the invocation with an *InvalidTriggerError; a policy returning nil
// turns unhandled triggers into no-ops. Passing nil restores the default.
func (m *Machine[S, T]) OnUnhandledTrigger(fn UnhandledTriggerFunc[S, T]) {
	if fn == nil {
		fn = m.defaultUnhandledTrigger
	}
	m.unhandled = fn
}

func (m *Machine[S, T]) defaultUnhandledTrigger(_ context.Context, state S, trigger T, unmetGuards []string) error {
	return &InvalidTriggerError{State: state, Trigger: trigger, UnmetGuards: unmetGuards}
}

// Fire enqueues trigger with args and returns the assigned sequence number
// immediately. Outcomes are reported later through observers tagged with
// that number. Arguments are validated when the invocation is dequeued, not
// here: a malformed call is accepted and only fails at dispatch time.
func (m *Machine[S, T]) Fire(trigger T, args ...any) (uint64, error) {
	return m.disp.enqueue(trigger, args, nil)
}

// FireSync enqueues trigger and blocks until the dispatcher has processed
// exactly this invocation, returning its outcome. The dispatcher does not
// drain the next queued item until FireSync has returned, so the caller can
// read the result before any further state change. A rejection is returned
// as the policy error with Handled false. Cancelling ctx abandons the wait
// without disturbing dispatch.
func (m *Machine[S, T]) FireSync(ctx context.Context, trigger T, args ...any) (Outcome[S, T], error) {
	handle := newRendezvous[S, T]()
	defer handle.release()

	seq, err := m.disp.enqueue(trigger, args, handle)
	if err != nil {
		return Outcome[S, T]{}, err
	}
	run := m.disp.token()

	select {
	case res := <-handle.outcome:
		return res.out, res.err
	case <-run.done:
		// Prefer a published outcome over the shutdown signal when both
		// arrived together (a fatal error closes done right after sending).
		select {
		case res := <-handle.outcome:
			return res.out, res.err
		default:
		}
		return Outcome[S, T]{Seq: seq}, ErrStopped
	case <-ctx.Done():
		return Outcome[S, T]{Seq: seq}, ctx.Err()
	}
}

// Start launches the dispatcher. Starting a running machine tears down the
// previous run and begins a fresh one; queued invocations survive restarts.
func (m *Machine[S, T]) Start(ctx context.Context) {
	m.disp.start(ctx)
}

// Stop cancels the dispatcher cooperatively and blocks until the worker has
// exited. The invocation in progress runs to completion; invocations still
// queued are left unprocessed.
func (m *Machine[S, T]) Stop() {
	m.disp.stop()
}

// Wait blocks until the current dispatcher run ends and returns the fatal
// error that terminated it, or nil after an orderly Stop.
func (m *Machine[S, T]) Wait() error {
	return m.disp.wait()
}

// Run starts the machine and returns a function suitable for errgroup: it
// blocks until ctx ends or dispatch fails fatally, stops the machine, and
// returns the fatal error if any.
func (m *Machine[S, T]) Run(ctx context.Context) func() error {
	return func() error {
		m.Start(ctx)
		run := m.disp.token()
		select {
		case <-ctx.Done():
			m.Stop()
			return nil
		case <-run.done:
			m.Stop()
			return run.err
		}
	}
}

// QueueDepth reports the number of invocations waiting to be dispatched.
func (m *Machine[S, T]) QueueDepth() int {
	return m.disp.depth()
}

// processInvocation executes one dequeued invocation to completion:
// argument validation, resolution, exit chain, cell write, enter chain,
// notifications. Only the trigger-rejected path is recoverable; any other
// failure, including recovered panics, is returned as fatal and terminates
// the dispatcher.
func (m *Machine[S, T]) processInvocation(ctx context.Context, inv *invocation[S, T]) (res outcomeResult[S, T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during dispatch: %v", r)
		}
	}()

	if ps, ok := m.params[inv.trigger]; ok {
		if verr := ps.validate(inv.trigger, inv.args); verr != nil {
			return res, verr
		}
	}

	source, err := m.cell.Read(ctx)
	if err != nil {
		return res, fmt.Errorf("read state: %w", err)
	}
	node := m.lookup(source)

	handler, found, err := node.findHandler(inv.trigger, inv.args)
	if err != nil {
		return res, err
	}
	if !found {
		return m.rejectTrigger(ctx, inv, source, node)
	}

	dest, transitions, err := handler.resolveDestination(source, inv.args)
	if err != nil {
		return res, err
	}
	if !transitions {
		// Ignored triggers and internal transitions stay in the source
		// state and skip the exit/enter protocol entirely.
		if ib, ok := handler.(*internalBehavior[S, T]); ok {
			tr := Transition[S, T]{Source: source, Destination: source, Trigger: inv.trigger}
			if aerr := ib.action(ctx, tr, inv.args...); aerr != nil {
				return res, fmt.Errorf("internal action for trigger %v: %w", inv.trigger, aerr)
			}
		}
		m.logger.Debug("trigger handled without transition",
			slog.Any("state", source),
			slog.Any("trigger", inv.trigger),
			slog.Uint64("seq", inv.seq))
		res.out = Outcome[S, T]{Seq: inv.seq, Handled: true}
		return res, nil
	}

	tr := Transition[S, T]{Source: source, Destination: dest, Trigger: inv.trigger}

	if err := node.exit(ctx, tr); err != nil {
		return res, fmt.Errorf("exit chain from %v: %w", source, err)
	}
	if err := m.cell.Write(ctx, dest); err != nil {
		return res, fmt.Errorf("write state: %w", err)
	}
	value, err := m.lookup(dest).enter(ctx, tr, inv.args)
	if err != nil {
		return res, fmt.Errorf("enter chain into %v: %w", dest, err)
	}

	m.obs.notifyTransitioned(ctx, TransitionEvent[S, T]{Seq: inv.seq, Transition: tr, Value: value})

	m.logger.Debug("transition complete",
		slog.Any("source", source),
		slog.Any("destination", dest),
		slog.Any("trigger", inv.trigger),
		slog.Uint64("seq", inv.seq),
		slog.Bool("reentry", tr.IsReentry()))

	res.out = Outcome[S, T]{Seq: inv.seq, Handled: true, Transitioned: true, Transition: tr, Value: value}
	return res, nil
}

func (m *Machine[S, T]) rejectTrigger(ctx context.Context, inv *invocation[S, T], state S, node *stateNode[S, T]) (outcomeResult[S, T], error) {
	unmet := node.findUnmetGuards(inv.trigger, inv.args)
	perr := m.unhandled(ctx, state, inv.trigger, unmet)

	m.obs.notifyRejected(ctx, RejectionEvent[S, T]{
		Seq:         inv.seq,
		State:       state,
		Trigger:     inv.trigger,
		UnmetGuards: unmet,
		Err:         perr,
	})

	m.logger.Debug("trigger rejected",
		slog.Any("state", state),
		slog.Any("trigger", inv.trigger),
		slog.Uint64("seq", inv.seq),
		slog.Bool("guard_unmet", len(unmet) > 0))

	return outcomeResult[S, T]{out: Outcome[S, T]{Seq: inv.seq}, err: perr}, nil
}
