package vigil

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// Set owns a collection of AnyCancellable values keyed by identity.
// Removing an entry, clearing the set or closing it destroys the affected
// entries, which cancels whatever they wrap.
type Set struct {
	mu      sync.Mutex
	entries map[ID]*AnyCancellable
	closed  bool
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{entries: make(map[ID]*AnyCancellable)}
}

// Insert adds a to the set. It returns false if an entry with the same
// identity is already present. Inserting into a closed set destroys a
// immediately and returns false.
func (s *Set) Insert(a *AnyCancellable) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		a.Close()
		return false
	}
	if _, ok := s.entries[a.id]; ok {
		s.mu.Unlock()
		return false
	}
	s.entries[a.id] = a
	s.mu.Unlock()
	return true
}

// Remove destroys and removes a. It returns false if a was not in the set.
func (s *Set) Remove(a *AnyCancellable) bool {
	s.mu.Lock()
	_, ok := s.entries[a.id]
	if ok {
		delete(s.entries, a.id)
	}
	s.mu.Unlock()

	if ok {
		a.Close()
	}
	return ok
}

// Contains reports whether a is in the set.
func (s *Set) Contains(a *AnyCancellable) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[a.id]
	return ok
}

// Len returns the number of entries.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear destroys every entry exactly once and empties the set.
// The set remains usable.
func (s *Set) Clear() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[ID]*AnyCancellable)
	s.mu.Unlock()

	s.destroy(entries)
}

// Close clears the set and rejects further inserts.
func (s *Set) Close() {
	s.mu.Lock()
	s.closed = true
	entries := s.entries
	s.entries = make(map[ID]*AnyCancellable)
	s.mu.Unlock()

	s.destroy(entries)
}

// destroy runs outside the lock so cancel actions may re-enter the set.
func (s *Set) destroy(entries map[ID]*AnyCancellable) {
	if len(entries) == 0 {
		return
	}
	for _, a := range entries {
		a.Close()
	}
	capitan.Emit(context.Background(), SetCleared,
		KeyCount.Field(len(entries)),
	)
}
