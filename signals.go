package vigil

import "github.com/zoobzio/capitan"

// Monitor lifecycle signals.
var (
	// MonitorStarted is emitted when a Monitor spawns its background task.
	MonitorStarted = capitan.NewSignal(
		"vigil.monitor.started",
		"Monitor observation started",
	)

	// MonitorStopped is emitted when a Monitor's background task ends,
	// whatever the reason.
	MonitorStopped = capitan.NewSignal(
		"vigil.monitor.stopped",
		"Monitor observation stopped",
	)

	// MonitorFailed is emitted when a producer fails mid-stream.
	MonitorFailed = capitan.NewSignal(
		"vigil.monitor.failed",
		"Monitor producer failed",
	)

	// MonitorTargetReleased is emitted when a weakly held target is
	// collected and the monitor stops.
	MonitorTargetReleased = capitan.NewSignal(
		"vigil.monitor.target.released",
		"Monitor target released",
	)
)

// Set signals.
var (
	// SetCleared is emitted when a Set destroys its entries.
	SetCleared = capitan.NewSignal(
		"vigil.set.cleared",
		"Set entries destroyed",
	)
)
