// Package metrics provides metrics collection for the query gateway.
package metrics

import (
	"time"
)

// Collector is the gateway's metrics sink. The pipeline records validation
// rejections, execution outcomes, and row counts through it; callers that do
// not care about metrics pass the no-op implementation.
type Collector interface {
	// IncrementCounter bumps a counter, with labels as alternating
	// key/value pairs.
	IncrementCounter(name string, labels ...string)

	// RecordHistogram observes a value, used for row counts and durations.
	RecordHistogram(name string, value float64, labels ...string)

	// RecordGauge sets a gauge to the given value.
	RecordGauge(name string, value float64, labels ...string)

	// StartTimer begins timing an operation such as a gateway invocation.
	StartTimer(name string) Timer
}

// Timer measures one operation from StartTimer to Stop.
type Timer interface {
	// Stop ends the measurement and returns the elapsed seconds.
	Stop() float64
}

// NoOpCollector discards everything. It stands in wherever a deployment runs
// without a metrics endpoint.
type NoOpCollector struct{}

// NewNoOpCollector creates a collector that records nothing.
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

// IncrementCounter discards the increment.
func (n *NoOpCollector) IncrementCounter(name string, labels ...string) {}

// RecordHistogram discards the observation.
func (n *NoOpCollector) RecordHistogram(name string, value float64, labels ...string) {}

// RecordGauge discards the value.
func (n *NoOpCollector) RecordGauge(name string, value float64, labels ...string) {}

// StartTimer returns a timer that still measures elapsed time, so callers can
// use the return value even without a backend.
func (n *NoOpCollector) StartTimer(name string) Timer {
	return &noOpTimer{start: time.Now()}
}

type noOpTimer struct {
	start time.Time
}

func (t *noOpTimer) Stop() float64 {
	return time.Since(t.start).Seconds()
}
