package property

import (
	"context"
	"reflect"
	"sync"

	"github.com/zoobzio/vigil"
)

type config struct {
	initial     bool
	onlyChanges bool
	buffering   []vigil.BufferOption
	monitor     []vigil.Option
}

// Option configures Values and MonitorValues.
type Option func(*config)

// Initial yields the attribute's current value before any change.
func Initial() Option {
	return func(c *config) {
		c.initial = true
	}
}

// OnlyChanges skips notifications that leave the attribute deeply equal to
// its previous value.
func OnlyChanges() Option {
	return func(c *config) {
		c.onlyChanges = true
	}
}

// Buffering sets the buffering policy between notifications and the
// consumer. The default is unbounded.
func Buffering(opts ...vigil.BufferOption) Option {
	return func(c *config) {
		c.buffering = append(c.buffering, opts...)
	}
}

// WithMonitorOptions passes options to the monitor built by MonitorValues.
func WithMonitorOptions(opts ...vigil.Option) Option {
	return func(c *config) {
		c.monitor = append(c.monitor, opts...)
	}
}

// Stream is a non-failing producer of attribute values.
type Stream[T any] struct {
	buf *vigil.Buffer[T]
}

// Next returns the next attribute value.
func (s *Stream[T]) Next(ctx context.Context) (T, bool) {
	return s.buf.Next(ctx)
}

// Close ends the stream, discards undelivered values and releases the
// observation.
func (s *Stream[T]) Close() error {
	return s.buf.Close()
}

// tokenHolder owns the observation token. Clearing races with notifications
// arriving from the object's goroutines, so every access holds mu.
type tokenHolder struct {
	mu     sync.Mutex
	token  *Token
	closed bool
}

func (h *tokenHolder) set(t *Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		t.Invalidate()
		return
	}
	h.token = t
}

// deliver runs fn unless the holder has been cleared.
func (h *tokenHolder) deliver(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	fn()
}

func (h *tokenHolder) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.token != nil {
		h.token.Invalidate()
		h.token = nil
	}
}

// Values returns a stream of key(state) that yields each time obj changes.
// The observation is released when the stream ends, either through Close or
// because its consumer was cancelled.
func Values[S, T any](obj *Object[S], key func(S) T, opts ...Option) *Stream[T] {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	buf := vigil.NewBuffer[T](cfg.buffering...)
	holder := &tokenHolder{}

	changed := func(old, updated S) {
		holder.deliver(func() {
			v := key(updated)
			if cfg.onlyChanges && reflect.DeepEqual(key(old), v) {
				return
			}
			buf.Yield(v)
		})
	}

	var initial func(S)
	if cfg.initial {
		initial = func(current S) {
			holder.deliver(func() { buf.Yield(key(current)) })
		}
	}

	holder.set(obj.observe(changed, initial))
	buf.OnTermination(holder.clear)

	return &Stream[T]{buf: buf}
}

// MonitorValues observes key(state) with a vigil.Monitor.
func MonitorValues[S, T any](
	ctx context.Context,
	obj *Object[S],
	key func(S) T,
	fn func(context.Context, T),
	opts ...Option,
) *vigil.Monitor[T] {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return vigil.New(ctx, Values(obj, key, opts...), fn, cfg.monitor...)
}
