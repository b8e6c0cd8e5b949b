// Package cmetrics registers the runtime's counters and meters against a
// shared go-metrics registry, the way go-ethereum's own metrics package
// wraps github.com/rcrowley/go-metrics.
package cmetrics

import (
	gometrics "github.com/rcrowley/go-metrics"
)

var registry = gometrics.NewRegistry()

// Registry exposes the underlying registry, e.g. for a host process to
// pipe samples out to a reporter.
func Registry() gometrics.Registry { return registry }

// NewMeter registers (or fetches) a named meter, mirroring
// metrics.NewRegisteredMeter in core/state/snapshot/snapshot.go.
func NewMeter(name string) gometrics.Meter {
	return gometrics.GetOrRegisterMeter(name, registry)
}

// NewCounter registers (or fetches) a named counter.
func NewCounter(name string) gometrics.Counter {
	return gometrics.GetOrRegisterCounter(name, registry)
}
