package vigil

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key monitor events.
type MetricsProvider interface {
	// OnStart is called when a monitor spawns its background task.
	OnStart()

	// OnDelivery is called after the callback returns for one element.
	// Duration covers the wait for the domain and the callback itself.
	OnDelivery(duration time.Duration)

	// OnStop is called once when the background task ends.
	OnStop(state State, lifetime time.Duration)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStart()                        {}
func (NoOpMetricsProvider) OnDelivery(_ time.Duration)      {}
func (NoOpMetricsProvider) OnStop(_ State, _ time.Duration) {}
