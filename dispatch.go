package espalier

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultPollInterval = 20 * time.Millisecond

// Outcome is the rendezvous result of one invocation. Handled is false when
// the trigger was rejected; Transitioned is false for handled invocations
// that do not move the machine (ignored triggers, internal transitions).
type Outcome[S, T comparable] struct {
	Seq          uint64
	Handled      bool
	Transitioned bool
	Transition   Transition[S, T]

	// Value is the result of the last entry action executed.
	Value any
}

type outcomeResult[S, T comparable] struct {
	out Outcome[S, T]
	err error
}

// rendezvous carries one invocation's outcome back to a synchronous caller.
// The worker publishes exactly one result and then waits for the caller to
// release the handle before draining the next queued item.
type rendezvous[S, T comparable] struct {
	outcome  chan outcomeResult[S, T]
	released chan struct{}
	once     sync.Once
}

func newRendezvous[S, T comparable]() *rendezvous[S, T] {
	return &rendezvous[S, T]{
		outcome:  make(chan outcomeResult[S, T], 1),
		released: make(chan struct{}),
	}
}

// release lets the worker proceed past this invocation. Safe to call more
// than once; FireSync releases on every return path so an abandoned wait can
// never wedge the worker.
func (r *rendezvous[S, T]) release() {
	r.once.Do(func() { close(r.released) })
}

// invocation is one queued trigger request. handle is nil for
// fire-and-forget calls.
type invocation[S, T comparable] struct {
	trigger T
	args    []any
	seq     uint64
	handle  *rendezvous[S, T]
}

// processFunc executes one dequeued invocation. The returned result is
// delivered to rendezvous callers; a non-nil error is fatal and terminates
// the dispatcher.
type processFunc[S, T comparable] func(ctx context.Context, inv *invocation[S, T]) (outcomeResult[S, T], error)

// runToken identifies one dispatcher run. Start tears the previous token
// down before creating a fresh one. err is written by the worker before done
// is closed.
type runToken struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// dispatcher serializes concurrent Fire calls into one FIFO queue drained by
// a single worker goroutine. The queue is the only structure shared between
// producers and the consumer; state reads, writes and action execution all
// happen on the worker.
type dispatcher[S, T comparable] struct {
	id           string
	process      processFunc[S, T]
	logger       *slog.Logger
	pollInterval time.Duration

	mu    sync.Mutex
	seq   uint64
	queue []*invocation[S, T]

	runMu   sync.Mutex
	run     *runToken
	running atomic.Bool
}

func newDispatcher[S, T comparable](process processFunc[S, T], logger *slog.Logger, pollInterval time.Duration) *dispatcher[S, T] {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &dispatcher[S, T]{
		id:           uuid.NewString(),
		process:      process,
		logger:       logger,
		pollInterval: pollInterval,
	}
}

// enqueue assigns the next sequence number and appends the invocation.
// Assignment and append happen under one lock so queue order always equals
// sequence order.
func (d *dispatcher[S, T]) enqueue(trigger T, args []any, handle *rendezvous[S, T]) (uint64, error) {
	if !d.running.Load() {
		return 0, ErrNotRunning
	}
	d.mu.Lock()
	d.seq++
	inv := &invocation[S, T]{trigger: trigger, args: args, seq: d.seq, handle: handle}
	d.queue = append(d.queue, inv)
	depth := len(d.queue)
	d.mu.Unlock()

	d.logger.Debug("invocation enqueued",
		slog.String("dispatcher_id", d.id),
		slog.Uint64("seq", inv.seq),
		slog.Int("queue_depth", depth))
	return inv.seq, nil
}

func (d *dispatcher[S, T]) pop() *invocation[S, T] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil
	}
	inv := d.queue[0]
	d.queue = d.queue[1:]
	return inv
}

// depth reports the number of queued invocations not yet dequeued.
func (d *dispatcher[S, T]) depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// start launches the worker. A second start tears down the previous run
// token before creating a fresh one. Queue contents survive a restart;
// invocations abandoned by a stop are processed by the next run.
func (d *dispatcher[S, T]) start(parent context.Context) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.run != nil {
		d.run.cancel()
		<-d.run.done
	}

	ctx, cancel := context.WithCancel(parent)
	r := &runToken{cancel: cancel, done: make(chan struct{})}
	d.run = r
	d.running.Store(true)

	go d.loop(ctx, r)

	d.logger.Info("dispatcher started",
		slog.String("dispatcher_id", d.id),
		slog.Duration("poll_interval", d.pollInterval))
}

// stop cancels cooperatively and blocks until the worker exits. The
// invocation in progress runs to completion; anything still queued is left
// unprocessed.
func (d *dispatcher[S, T]) stop() {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.run == nil {
		return
	}
	d.running.Store(false)
	d.run.cancel()
	<-d.run.done

	d.logger.Info("dispatcher stopped",
		slog.String("dispatcher_id", d.id),
		slog.Int("abandoned", d.depth()))
}

// wait blocks until the current run ends and returns its fatal error, if
// any. It returns nil immediately when the dispatcher was never started.
func (d *dispatcher[S, T]) wait() error {
	d.runMu.Lock()
	r := d.run
	d.runMu.Unlock()
	if r == nil {
		return nil
	}
	<-r.done
	return r.err
}

// token returns the current run token, or nil before the first start.
func (d *dispatcher[S, T]) token() *runToken {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.run
}

func (d *dispatcher[S, T]) loop(ctx context.Context, r *runToken) {
	defer close(r.done)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.drain(ctx); err != nil {
			d.running.Store(false)
			r.err = err
			d.logger.Error("dispatcher terminated",
				slog.String("dispatcher_id", d.id),
				slog.Any("err", err))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain processes the entire current queue one invocation at a time, each to
// full completion before the next dequeue. Cancellation takes effect between
// invocations, never in the middle of one.
func (d *dispatcher[S, T]) drain(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		inv := d.pop()
		if inv == nil {
			return nil
		}
		if err := d.dispatch(ctx, inv); err != nil {
			return &FatalDispatchError{Seq: inv.seq, Err: err}
		}
	}
}

func (d *dispatcher[S, T]) dispatch(ctx context.Context, inv *invocation[S, T]) error {
	res, err := d.process(ctx, inv)
	if inv.handle != nil {
		if err != nil {
			res.err = err
		}
		res.out.Seq = inv.seq
		inv.handle.outcome <- res
		if err == nil {
			// The next item must not be dequeued until the caller has taken
			// the outcome and released the handle.
			select {
			case <-inv.handle.released:
			case <-ctx.Done():
			}
		}
	}
	return err
}
