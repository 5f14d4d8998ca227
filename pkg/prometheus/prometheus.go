// Package prometheus provides a vigil.MetricsProvider backed by Prometheus
// collectors.
package prometheus

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/vigil"
)

// Metrics records monitor activity. Share one Metrics across monitors with
// vigil.WithMetrics.
type Metrics struct {
	active    prometheus.Gauge
	started   prometheus.Counter
	stopped   *prometheus.CounterVec
	delivered prometheus.Counter
	delivery  prometheus.Histogram
	lifetime  prometheus.Histogram
}

// New creates the collectors under namespace and registers them with reg.
//
// Example:
//
//	metrics, err := prometheus.New(prom.DefaultRegisterer, "app")
//	if err != nil {
//	    return err
//	}
//	vigil.New(ctx, producer, handle, vigil.WithMetrics(metrics))
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vigil",
			Name:      "monitors_active",
			Help:      "Number of monitors whose background task is running.",
		}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vigil",
			Name:      "monitors_started_total",
			Help:      "Total number of monitors started.",
		}),
		stopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vigil",
			Name:      "monitors_stopped_total",
			Help:      "Total number of monitors stopped, by final state.",
		}, []string{"state"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vigil",
			Name:      "elements_delivered_total",
			Help:      "Total number of elements handed to monitor callbacks.",
		}),
		delivery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vigil",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering one element, including the wait for the domain.",
			Buckets:   prometheus.DefBuckets,
		}),
		lifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vigil",
			Name:      "monitor_lifetime_seconds",
			Help:      "Time between a monitor starting and stopping.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.active, m.started, m.stopped, m.delivered, m.delivery, m.lifetime} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register vigil metrics: %w", err)
		}
	}
	return m, nil
}

// OnStart implements vigil.MetricsProvider.
func (m *Metrics) OnStart() {
	m.active.Inc()
	m.started.Inc()
}

// OnDelivery implements vigil.MetricsProvider.
func (m *Metrics) OnDelivery(d time.Duration) {
	m.delivered.Inc()
	m.delivery.Observe(d.Seconds())
}

// OnStop implements vigil.MetricsProvider.
func (m *Metrics) OnStop(state vigil.State, lifetime time.Duration) {
	m.active.Dec()
	m.stopped.WithLabelValues(state.String()).Inc()
	m.lifetime.Observe(lifetime.Seconds())
}

var _ vigil.MetricsProvider = (*Metrics)(nil)
