package vigil

import (
	"runtime"
	"sync"
)

// AnyCancellable is a type-erased Cancellable.
//
// It retains only the cancel action of the value it wraps. Its identity is
// its own, so wrapping the same Cancellable twice yields two independent
// entries. Destroying the wrapper, either with Close or by letting it become
// unreachable, cancels the wrapped value.
type AnyCancellable struct {
	id      ID
	cancel  func()
	cleanup runtime.Cleanup

	closeOnce sync.Once
}

// NewAnyCancellable wraps c.
func NewAnyCancellable(c Cancellable) *AnyCancellable {
	return NewAnyCancellableFunc(c.Cancel)
}

// NewAnyCancellableFunc wraps a bare cancel action. fn must be idempotent.
func NewAnyCancellableFunc(fn func()) *AnyCancellable {
	a := &AnyCancellable{
		id:     nextID(),
		cancel: fn,
	}
	a.cleanup = runtime.AddCleanup(a, func(cancel func()) { cancel() }, fn)
	return a
}

// ID returns the wrapper's identity.
func (a *AnyCancellable) ID() ID {
	return a.id
}

// Cancel invokes the wrapped cancel action.
func (a *AnyCancellable) Cancel() {
	a.cancel()
}

// Close destroys the wrapper: the wrapped value is cancelled and the
// garbage-collection cleanup is disarmed. Only the first call has effect.
func (a *AnyCancellable) Close() {
	a.closeOnce.Do(func() {
		a.cleanup.Stop()
		a.cancel()
	})
}

// Store inserts the wrapper into set.
func (a *AnyCancellable) Store(set *Set) {
	set.Insert(a)
}
