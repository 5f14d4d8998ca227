package vigil

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// BufferPolicy decides what a Buffer does with a value yielded while full.
type BufferPolicy int

const (
	// Unbounded never drops values.
	Unbounded BufferPolicy = iota
	// KeepNewest drops the oldest buffered value to make room.
	KeepNewest
	// KeepOldest drops the value being yielded.
	KeepOldest
)

// YieldResult reports the outcome of Buffer.Yield.
type YieldResult int

const (
	// Enqueued means the value was buffered without loss.
	Enqueued YieldResult = iota
	// Dropped means the buffer was full and a value was discarded.
	Dropped
	// Terminated means the buffer no longer accepts values.
	Terminated
)

type bufferConfig struct {
	policy BufferPolicy
	limit  int
}

// BufferOption configures a Buffer.
type BufferOption func(*bufferConfig)

// BufferNewest bounds the buffer to n values, keeping the most recent.
func BufferNewest(n int) BufferOption {
	return func(c *bufferConfig) {
		c.policy = KeepNewest
		c.limit = n
	}
}

// BufferOldest bounds the buffer to n values, keeping the earliest.
func BufferOldest(n int) BufferOption {
	return func(c *bufferConfig) {
		c.policy = KeepOldest
		c.limit = n
	}
}

// Buffer bridges callback-style sources into a Producer. Sources push with
// Yield and end the sequence with Finish; a consumer pulls with Next.
//
// The buffer terminates when it is finished, when it is closed, or when a
// consumer's Next observes its context done. Termination handlers registered with
// OnTermination run exactly once, on whichever happens first.
type Buffer[T any] struct {
	mu         sync.Mutex
	items      *queue.Queue
	policy     BufferPolicy
	limit      int
	finished   bool
	terminated bool
	onTerm     []func()

	ready chan struct{}
	done  chan struct{}
}

// NewBuffer creates an empty Buffer.
func NewBuffer[T any](opts ...BufferOption) *Buffer[T] {
	cfg := &bufferConfig{policy: Unbounded}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.limit <= 0 {
		cfg.policy = Unbounded
	}
	return &Buffer[T]{
		items:  queue.New(),
		policy: cfg.policy,
		limit:  cfg.limit,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Yield pushes v onto the buffer.
func (b *Buffer[T]) Yield(v T) YieldResult {
	b.mu.Lock()
	if b.finished {
		b.mu.Unlock()
		return Terminated
	}

	result := Enqueued
	if b.policy != Unbounded && b.items.Length() >= b.limit {
		result = Dropped
		if b.policy == KeepOldest {
			b.mu.Unlock()
			return result
		}
		b.items.Remove()
	}
	b.items.Add(v)
	b.mu.Unlock()

	b.signal()
	return result
}

// Finish ends the sequence. Values already buffered are still delivered
// before Next reports exhaustion.
func (b *Buffer[T]) Finish() {
	b.terminate(false)
}

// Close terminates the buffer and discards anything still buffered.
func (b *Buffer[T]) Close() error {
	b.terminate(true)
	return nil
}

// OnTermination registers fn to run once when the buffer terminates.
// If the buffer has already terminated fn runs immediately.
func (b *Buffer[T]) OnTermination(fn func()) {
	b.mu.Lock()
	if b.terminated {
		b.mu.Unlock()
		fn()
		return
	}
	b.onTerm = append(b.onTerm, fn)
	b.mu.Unlock()
}

// Len returns the number of buffered values.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items.Length()
}

// Next returns the next buffered value, waiting if none is available.
// A done ctx terminates the buffer and discards anything still buffered.
func (b *Buffer[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	for {
		if ctx.Err() != nil {
			b.terminate(true)
			return zero, false
		}

		b.mu.Lock()
		if b.items.Length() > 0 {
			v := b.items.Remove().(T)
			more := b.items.Length() > 0
			b.mu.Unlock()
			if more {
				b.signal()
			}
			return v, true
		}
		finished := b.finished
		b.mu.Unlock()
		if finished {
			return zero, false
		}

		select {
		case <-ctx.Done():
		case <-b.ready:
		case <-b.done:
		}
	}
}

func (b *Buffer[T]) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *Buffer[T]) terminate(discard bool) {
	b.mu.Lock()
	if discard {
		for b.items.Length() > 0 {
			b.items.Remove()
		}
	}
	if b.terminated {
		b.mu.Unlock()
		return
	}
	b.finished = true
	b.terminated = true
	handlers := b.onTerm
	b.onTerm = nil
	close(b.done)
	b.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}
