package vigil

import "github.com/zoobzio/clockz"

// config holds configuration options for a Monitor.
type config struct {
	domain        Domain
	unconstrained bool
	name          string
	clock         clockz.Clock
	metrics       MetricsProvider
	onStop        func(State)
}

// Option configures a Monitor.
type Option func(*config)

// WithDomain pins callback execution to d instead of the ambient domain
// carried by the constructor's context.
func WithDomain(d Domain) Option {
	return func(c *config) {
		c.domain = d
	}
}

// Unconstrained runs callbacks on the monitor's own goroutine regardless of
// the ambient domain. The callback must then be safe to run concurrently
// with anything else in the program.
func Unconstrained() Option {
	return func(c *config) {
		c.unconstrained = true
	}
}

// WithName sets a name reported in diagnostic signals.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithClock sets a custom clock for lifetime and delivery measurements.
// Use this with clockz.FakeClock for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithMetrics sets a metrics provider for observability integration.
func WithMetrics(provider MetricsProvider) Option {
	return func(c *config) {
		c.metrics = provider
	}
}

// OnStop sets a callback invoked once when the background task ends.
// It receives the final state and runs on the monitor's goroutine.
func OnStop(fn func(State)) Option {
	return func(c *config) {
		c.onStop = fn
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		clock:   clockz.RealClock,
		metrics: NoOpMetricsProvider{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
