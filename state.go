package vigil

// State represents the lifecycle state of a Monitor.
type State int32

const (
	// StateRunning indicates the background task is consuming the producer.
	StateRunning State = iota

	// StateCompleted indicates the producer was exhausted.
	StateCompleted

	// StateFailed indicates the producer failed mid-stream. The error is
	// available from Err.
	StateFailed

	// StateCancelled indicates the monitor was cancelled, explicitly, through
	// its parent context, or because its target was released.
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s != StateRunning
}
