package vigil

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

const (
	modeInfallible = "infallible"
	modeFallible   = "fallible"
)

// Monitor owns one background goroutine that pulls elements from a producer
// and invokes a callback for each of them, one at a time and in order.
//
// The goroutine is started by the constructor and runs until the producer is
// exhausted, the producer fails, or the monitor is cancelled. A Monitor is
// single-shot: create a new one to observe again.
//
// Cancellation is cooperative. A callback that is already running when Cancel
// is called completes normally; no callback starts after the goroutine has
// observed the cancellation, even if the producer has buffered elements.
//
// A Monitor owns its producer: when the background task ends, a producer
// that implements io.Closer is closed.
//
// Dropping the last reference to a running Monitor cancels it once the
// garbage collector reclaims it. Callers that need prompt cleanup call Close
// or Cancel, or keep the monitor in a Set.
type Monitor[T any] struct {
	task      *task
	cleanup   runtime.Cleanup
	closeOnce sync.Once
}

// task is the state shared between a Monitor and its goroutine. It must never
// reference the Monitor, otherwise the Monitor could not be collected.
type task struct {
	id     ID
	name   string
	mode   string
	cancel context.CancelFunc
	done   chan struct{}
	closer io.Closer

	state     atomic.Int32
	err       atomic.Pointer[error]
	delivered atomic.Int64

	clock   clockz.Clock
	metrics MetricsProvider
	onStop  func(State)
	started time.Time
}

// New starts a Monitor over a producer that never fails.
//
// The callback executes in the ambient Domain carried by ctx (see ContextWithDomain)
// unless an option overrides it. Cancelling ctx cancels the monitor.
//
// Example:
//
//	m := vigil.New(ctx, vigil.FromChannel(events), func(ctx context.Context, e Event) {
//	    handle(e)
//	})
//	defer m.Close()
func New[T any](
	ctx context.Context,
	p Producer[T],
	fn func(context.Context, T),
	opts ...Option,
) *Monitor[T] {
	next := func(ctx context.Context) (T, error) {
		v, ok := p.Next(ctx)
		if !ok {
			return v, io.EOF
		}
		return v, nil
	}
	return start(ctx, modeInfallible, p, next, invoke(fn), opts)
}

// NewFallible starts a Monitor over a producer that may fail.
//
// A failure ends the monitor in StateFailed and is reported through the
// MonitorFailed signal and Err. A failure that surfaces after the monitor was
// cancelled is suppressed and the monitor ends in StateCancelled. Failures are
// never retried.
func NewFallible[T any](
	ctx context.Context,
	p FallibleProducer[T],
	fn func(context.Context, T),
	opts ...Option,
) *Monitor[T] {
	return start(ctx, modeFallible, p, p.Next, invoke(fn), opts)
}

// NewWeak starts a Monitor that holds target only weakly. Before each
// delivery the target is resolved; once it has been collected the element is
// dropped and the monitor stops in StateCancelled.
//
// fn must not capture target, otherwise target is never collected.
func NewWeak[X, T any](
	ctx context.Context,
	p Producer[T],
	target *X,
	fn func(context.Context, *X, T),
	opts ...Option,
) *Monitor[T] {
	next := func(ctx context.Context) (T, error) {
		v, ok := p.Next(ctx)
		if !ok {
			return v, io.EOF
		}
		return v, nil
	}
	return start(ctx, modeInfallible, p, next, invokeWeak(weak.Make(target), fn), opts)
}

// NewFallibleWeak is NewWeak for a producer that may fail.
func NewFallibleWeak[X, T any](
	ctx context.Context,
	p FallibleProducer[T],
	target *X,
	fn func(context.Context, *X, T),
	opts ...Option,
) *Monitor[T] {
	return start(ctx, modeFallible, p, p.Next, invokeWeak(weak.Make(target), fn), opts)
}

// deliverFunc invokes the callback for v and reports whether the monitor
// should keep going.
type deliverFunc[T any] func(ctx context.Context, v T) bool

func invoke[T any](fn func(context.Context, T)) deliverFunc[T] {
	return func(ctx context.Context, v T) bool {
		fn(ctx, v)
		return true
	}
}

func invokeWeak[X, T any](target weak.Pointer[X], fn func(context.Context, *X, T)) deliverFunc[T] {
	return func(ctx context.Context, v T) bool {
		x := target.Value()
		if x == nil {
			return false
		}
		fn(ctx, x, v)
		return true
	}
}

func start[T any](
	parent context.Context,
	mode string,
	producer any,
	next func(context.Context) (T, error),
	deliver deliverFunc[T],
	opts []Option,
) *Monitor[T] {
	cfg := newConfig(opts)

	domain := cfg.domain
	switch {
	case cfg.unconstrained:
		domain = Unconfined
	case domain == nil:
		domain = DomainFrom(parent)
	}

	ctx, cancel := context.WithCancel(ContextWithDomain(parent, domain))

	t := &task{
		id:      nextID(),
		name:    cfg.name,
		mode:    mode,
		cancel:  cancel,
		done:    make(chan struct{}),
		clock:   cfg.clock,
		metrics: cfg.metrics,
		onStop:  cfg.onStop,
	}
	if c, ok := producer.(io.Closer); ok {
		t.closer = c
	}
	t.state.Store(int32(StateRunning))
	t.started = t.clock.Now()

	m := &Monitor[T]{task: t}
	m.cleanup = runtime.AddCleanup(m, func(cancel context.CancelFunc) { cancel() }, cancel)

	capitan.Emit(parent, MonitorStarted,
		KeyMonitor.Field(t.id.String()),
		KeyName.Field(t.name),
		KeyMode.Field(t.mode),
	)
	t.metrics.OnStart()

	go run(ctx, t, domain, next, deliver)

	return m
}

// run is the consume loop. It suspends only in next and in the domain.
func run[T any](
	ctx context.Context,
	t *task,
	domain Domain,
	next func(context.Context) (T, error),
	deliver deliverFunc[T],
) {
	for {
		v, err := next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				t.finish(ctx, StateCancelled)
			case errors.Is(err, io.EOF):
				t.finish(ctx, StateCompleted)
			default:
				t.fail(ctx, err)
			}
			return
		}
		if ctx.Err() != nil {
			t.finish(ctx, StateCancelled)
			return
		}

		begin := t.clock.Now()
		keep, invoked := true, false
		err = domain.Do(ctx, func() {
			if ctx.Err() != nil {
				return
			}
			invoked = true
			keep = deliver(ctx, v)
		})
		if err != nil {
			if ctx.Err() != nil {
				t.finish(ctx, StateCancelled)
			} else {
				t.fail(ctx, err)
			}
			return
		}
		if !keep {
			capitan.Emit(context.WithoutCancel(ctx), MonitorTargetReleased,
				KeyMonitor.Field(t.id.String()),
				KeyName.Field(t.name),
			)
			t.finish(ctx, StateCancelled)
			return
		}
		if invoked {
			t.delivered.Add(1)
			t.metrics.OnDelivery(t.clock.Since(begin))
		}
	}
}

func (t *task) fail(ctx context.Context, err error) {
	e := err
	t.err.Store(&e)
	capitan.Emit(context.WithoutCancel(ctx), MonitorFailed,
		KeyMonitor.Field(t.id.String()),
		KeyName.Field(t.name),
		KeyError.Field(err.Error()),
	)
	t.finish(ctx, StateFailed)
}

func (t *task) finish(ctx context.Context, final State) {
	t.cancel()
	if t.closer != nil {
		_ = t.closer.Close() //nolint:errcheck // Close errors are not reported
	}
	t.state.Store(int32(final))

	lifetime := t.clock.Since(t.started)
	capitan.Emit(context.WithoutCancel(ctx), MonitorStopped,
		KeyMonitor.Field(t.id.String()),
		KeyName.Field(t.name),
		KeyState.Field(final.String()),
		KeyLifetime.Field(lifetime),
		KeyDelivered.Field(int(t.delivered.Load())),
	)
	t.metrics.OnStop(final, lifetime)
	if t.onStop != nil {
		t.onStop(final)
	}
	close(t.done)
}

// ID returns the identity of the monitor's background task.
func (m *Monitor[T]) ID() ID {
	return m.task.id
}

// Name returns the name given with WithName.
func (m *Monitor[T]) Name() string {
	return m.task.name
}

// Equal reports whether m and other share the same background task.
func (m *Monitor[T]) Equal(other *Monitor[T]) bool {
	return other != nil && m.task.id == other.task.id
}

// Cancel requests the background task to stop. It is idempotent and does not
// wait; use Wait or Done to observe the end of the task.
func (m *Monitor[T]) Cancel() {
	m.task.cancel()
}

// Close destroys the monitor: it cancels the background task and disarms the
// garbage-collection cleanup.
func (m *Monitor[T]) Close() {
	m.closeOnce.Do(func() {
		m.cleanup.Stop()
		m.task.cancel()
	})
}

// Done returns a channel that is closed once the background task has ended.
func (m *Monitor[T]) Done() <-chan struct{} {
	return m.task.done
}

// Wait blocks until the background task has ended and returns its final
// state.
func (m *Monitor[T]) Wait() State {
	<-m.task.done
	return m.State()
}

// State returns the current state of the monitor.
func (m *Monitor[T]) State() State {
	return State(m.task.state.Load())
}

// Err returns the producer failure that ended the monitor, or nil.
func (m *Monitor[T]) Err() error {
	ptr := m.task.err.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Delivered returns the number of elements handed to the callback so far.
func (m *Monitor[T]) Delivered() int64 {
	return m.task.delivered.Load()
}

// Store wraps the monitor in an AnyCancellable and inserts it into set.
func (m *Monitor[T]) Store(set *Set) *AnyCancellable {
	return Store(m, set)
}
