package vigil

import (
	"context"
	"io"
	"iter"
	"sync"
)

// Producer is a pull-based sequence that never fails.
// Next blocks until an element is available and returns it with true, or
// returns false once the sequence is exhausted or ctx is done.
type Producer[T any] interface {
	Next(ctx context.Context) (T, bool)
}

// FallibleProducer is a pull-based sequence that may fail mid-stream.
// Next returns io.EOF once the sequence is exhausted; any other error is a
// failure that ends the sequence.
type FallibleProducer[T any] interface {
	Next(ctx context.Context) (T, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc[T any] func(ctx context.Context) (T, bool)

// Next calls f.
func (f ProducerFunc[T]) Next(ctx context.Context) (T, bool) {
	return f(ctx)
}

// FallibleProducerFunc adapts a function to FallibleProducer.
type FallibleProducerFunc[T any] func(ctx context.Context) (T, error)

// Next calls f.
func (f FallibleProducerFunc[T]) Next(ctx context.Context) (T, error) {
	return f(ctx)
}

// ChannelProducer wraps a channel as a Producer. The sequence ends when the
// channel is closed.
type ChannelProducer[T any] struct {
	ch <-chan T
}

// FromChannel creates a Producer that yields values received from ch.
func FromChannel[T any](ch <-chan T) *ChannelProducer[T] {
	return &ChannelProducer[T]{ch: ch}
}

// Next receives the next value from the channel.
func (p *ChannelProducer[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	if ctx.Err() != nil {
		return zero, false
	}
	select {
	case <-ctx.Done():
		return zero, false
	case v, ok := <-p.ch:
		return v, ok
	}
}

// FromSlice creates a Producer that yields the items in order.
func FromSlice[T any](items []T) Producer[T] {
	var (
		mu  sync.Mutex
		idx int
	)
	return ProducerFunc[T](func(ctx context.Context) (T, bool) {
		var zero T
		if ctx.Err() != nil {
			return zero, false
		}
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(items) {
			return zero, false
		}
		v := items[idx]
		idx++
		return v, true
	})
}

// Just creates a Producer that yields v once.
func Just[T any](v T) Producer[T] {
	return FromSlice([]T{v})
}

// SeqProducer pulls elements from a push iterator.
type SeqProducer[T any] struct {
	seq iter.Seq[T]

	mu      sync.Mutex
	next    func() (T, bool)
	stop    func()
	stopped bool
}

// FromSeq converts a push iterator into a Producer. The iterator is pulled
// lazily and stopped when it is exhausted, when a Next call sees ctx done, or
// on Close.
func FromSeq[T any](seq iter.Seq[T]) *SeqProducer[T] {
	return &SeqProducer[T]{seq: seq}
}

// Next returns the next element of the iterator.
func (p *SeqProducer[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return zero, false
	}
	if p.next == nil {
		p.next, p.stop = iter.Pull(p.seq)
	}
	if ctx.Err() != nil {
		p.release()
		return zero, false
	}
	v, ok := p.next()
	if !ok {
		p.release()
	}
	return v, ok
}

// Close stops the iterator, running its deferred cleanup. It is idempotent.
func (p *SeqProducer[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.release()
	}
	return nil
}

// release must be called with mu held.
func (p *SeqProducer[T]) release() {
	p.stopped = true
	if p.stop != nil {
		p.stop()
	}
}

// Infallible presents a Producer as a FallibleProducer that reports
// exhaustion as io.EOF.
func Infallible[T any](p Producer[T]) FallibleProducer[T] {
	return FallibleProducerFunc[T](func(ctx context.Context) (T, error) {
		v, ok := p.Next(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return v, err
			}
			return v, io.EOF
		}
		return v, nil
	})
}
