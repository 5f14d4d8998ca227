package vigil

import (
	"strconv"
	"sync/atomic"
)

// ID identifies a Monitor or AnyCancellable. IDs are assigned from a
// process-wide counter at construction and are never reused, so two values
// are the same entity if and only if their IDs are equal.
type ID uint64

// String returns the decimal form of the ID.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

var lastID atomic.Uint64

func nextID() ID {
	return ID(lastID.Add(1))
}

// Cancellable is anything that can be told to stop.
//
// Cancel must be idempotent: calling it more than once has the same effect
// as calling it once. After Cancel returns, the underlying activity stops
// producing callbacks at its next suspension point.
type Cancellable interface {
	Cancel()
}

// Store wraps c in a new AnyCancellable and inserts it into set.
// The wrapped activity stays alive while the entry remains in the set;
// removing the entry or clearing the set cancels it.
func Store(c Cancellable, set *Set) *AnyCancellable {
	a := NewAnyCancellable(c)
	set.Insert(a)
	return a
}
