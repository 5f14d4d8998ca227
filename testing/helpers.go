// Package testing provides test utilities and helpers for vigil monitors.
package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/vigil"
)

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForState waits until the monitor reaches the expected state or timeout occurs.
func WaitForState[T any](t *testing.T, m *vigil.Monitor[T], expected vigil.State, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return m.State() == expected
	})
}

// RequireState fails the test immediately if the monitor is not in the expected state.
func RequireState[T any](t *testing.T, m *vigil.Monitor[T], expected vigil.State) {
	t.Helper()
	if got := m.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// RequireStateWithin waits for the monitor to stop and fails the test if it
// does not stop within timeout or stops in a different state.
func RequireStateWithin[T any](t *testing.T, m *vigil.Monitor[T], expected vigil.State, timeout time.Duration) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(timeout):
		t.Fatalf("monitor did not stop within %v, state %s", timeout, m.State())
	}
	RequireState(t, m, expected)
}

// Recorder collects the values a monitor delivers. It is safe for
// concurrent use.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

// NewRecorder creates an empty Recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

// Callback records v. Pass it directly as a monitor callback.
func (r *Recorder[T]) Callback(_ context.Context, v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

// Values returns a copy of the recorded values in delivery order.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}
