// Package metrics exposes Prometheus collectors for the dispatch engine:
// invocation counts and latency per handler and dispatch type, filter chain
// length, instance allocations, outstanding instances, unavailability
// transitions and unload duration.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.MustNew(reg, metrics.DefaultConfig("shop"))
//	d := dispatcher.New(dispatcher.WithMetrics(m))
//
// Every recording method accepts a nil receiver, so components can hold an
// optional *Collector without checks.
package metrics
