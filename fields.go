package vigil

import "github.com/zoobzio/capitan"

// Field keys for vigil events.
var (
	// KeyMonitor is the identity of the Monitor.
	KeyMonitor = capitan.NewStringKey("monitor")

	// KeyName is the diagnostic name given with WithName.
	KeyName = capitan.NewStringKey("name")

	// KeyState is the final state of the Monitor.
	KeyState = capitan.NewStringKey("state")

	// KeyMode is "infallible" or "fallible".
	KeyMode = capitan.NewStringKey("mode")

	// KeyError is the error message when a producer fails.
	KeyError = capitan.NewStringKey("error")

	// KeyLifetime is how long the background task ran.
	KeyLifetime = capitan.NewDurationKey("lifetime")

	// KeyDelivered is the number of elements delivered to the callback.
	KeyDelivered = capitan.NewIntKey("delivered")

	// KeyCount is the number of entries affected.
	KeyCount = capitan.NewIntKey("count")
)
