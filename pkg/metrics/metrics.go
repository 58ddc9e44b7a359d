package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrRegister is returned when a collector cannot be registered.
var ErrRegister = errors.New("failed to register dispatch metrics")

// Config holds configuration for the dispatch collectors.
type Config struct {
	// Namespace for metrics (e.g., "myapp")
	Namespace string

	// Subsystem for metrics (e.g., "dispatch")
	Subsystem string

	// Buckets for the dispatch duration histogram
	Buckets []float64
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig(namespace string) Config {
	return Config{
		Namespace: namespace,
		Subsystem: "dispatch",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}
}

// Collector groups the Prometheus collectors of the dispatch engine.
// A nil *Collector is valid and records nothing.
type Collector struct {
	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	allocations      *prometheus.CounterVec
	outstanding      *prometheus.GaugeVec
	unavailable      *prometheus.CounterVec
	unloadDuration   *prometheus.HistogramVec
	filterChainSize  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// Collectors already registered with reg are reused.
func New(reg prometheus.Registerer, cfg Config) (*Collector, error) {
	if cfg.Subsystem == "" {
		cfg.Subsystem = "dispatch"
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}

	c := &Collector{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "invocations_total",
			Help:      "Total number of handler invocations by dispatch type and outcome",
		}, []string{"handler", "type", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "invocation_duration_seconds",
			Help:      "Handler invocation latency including the filter chain",
			Buckets:   cfg.Buckets,
		}, []string{"handler", "type"}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "allocations_total",
			Help:      "Total number of handler instance allocations by result",
		}, []string{"handler", "result"}),
		outstanding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "instances_outstanding",
			Help:      "Number of handler instances currently allocated",
		}, []string{"handler"}),
		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "unavailable_total",
			Help:      "Number of times a handler was marked unavailable",
		}, []string{"handler", "permanent"}),
		unloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "unload_duration_seconds",
			Help:      "Time spent draining and finalizing a handler",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"handler"}),
		filterChainSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "filter_chain_length",
			Help:      "Number of filters wrapping a handler invocation",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		}, []string{"type"}),
	}

	if reg != nil {
		var err error
		if c.dispatches, err = register(reg, c.dispatches); err != nil {
			return nil, err
		}
		if c.dispatchDuration, err = register(reg, c.dispatchDuration); err != nil {
			return nil, err
		}
		if c.allocations, err = register(reg, c.allocations); err != nil {
			return nil, err
		}
		if c.outstanding, err = register(reg, c.outstanding); err != nil {
			return nil, err
		}
		if c.unavailable, err = register(reg, c.unavailable); err != nil {
			return nil, err
		}
		if c.unloadDuration, err = register(reg, c.unloadDuration); err != nil {
			return nil, err
		}
		if c.filterChainSize, err = register(reg, c.filterChainSize); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(reg prometheus.Registerer, cfg Config) *Collector {
	c, err := New(reg, cfg)
	if err != nil {
		panic(err)
	}
	return c
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, errors.Join(ErrRegister, err)
}

// Invocation records one handler invocation.
func (c *Collector) Invocation(handler, dispatchType, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.dispatches.WithLabelValues(handler, dispatchType, outcome).Inc()
	c.dispatchDuration.WithLabelValues(handler, dispatchType).Observe(d.Seconds())
}

// FilterChain records the length of a built filter chain.
func (c *Collector) FilterChain(dispatchType string, length int) {
	if c == nil {
		return
	}
	c.filterChainSize.WithLabelValues(dispatchType).Observe(float64(length))
}

// Allocation records an allocation attempt and the resulting outstanding count.
func (c *Collector) Allocation(handler, result string, outstanding int64) {
	if c == nil {
		return
	}
	c.allocations.WithLabelValues(handler, result).Inc()
	c.outstanding.WithLabelValues(handler).Set(float64(outstanding))
}

// Outstanding sets the outstanding gauge of handler.
func (c *Collector) Outstanding(handler string, outstanding int64) {
	if c == nil {
		return
	}
	c.outstanding.WithLabelValues(handler).Set(float64(outstanding))
}

// Unavailable records a transition to unavailability.
func (c *Collector) Unavailable(handler string, permanent bool) {
	if c == nil {
		return
	}
	p := "false"
	if permanent {
		p = "true"
	}
	c.unavailable.WithLabelValues(handler, p).Inc()
}

// Unload records how long unloading a handler took.
func (c *Collector) Unload(handler string, d time.Duration) {
	if c == nil {
		return
	}
	c.unloadDuration.WithLabelValues(handler).Observe(d.Seconds())
}
