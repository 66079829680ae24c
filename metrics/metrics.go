// Package metrics provides settlement telemetry. It wraps Prometheus
// collectors for call outcomes, latency, cancellations and settled volume.
package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the sequencer and engines report to.
type Recorder interface {
	RecordCall(op string, duration time.Duration, err error)
	RecordCancellation(kind string)
	RecordVolume(op string, asset string, amount *big.Int)
}

// Collector records settlement metrics into its own registry.
type Collector struct {
	registry *prometheus.Registry

	callsTotal    *prometheus.CounterVec
	callLatency   *prometheus.HistogramVec
	cancellations *prometheus.CounterVec
	volume        *prometheus.CounterVec
}

// NewCollector creates a collector under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "settlement"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "calls_total",
			Help:      "Total number of settlement calls by operation and result",
		},
		[]string{"op", "result"},
	)

	c.callLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "call_duration_seconds",
			Help:      "Time taken to execute a settlement call",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~400ms
		},
		[]string{"op"},
	)

	c.cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "cancellations_total",
			Help:      "Total number of signatures cancelled explicitly",
		},
		[]string{"kind"},
	)

	c.volume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "settled_volume_total",
			Help:      "Settled amount in the smallest unit of the settlement asset",
		},
		[]string{"op", "asset"},
	)

	c.registry.MustRegister(c.callsTotal, c.callLatency, c.cancellations, c.volume)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordCall records the outcome and latency of one engine call.
func (c *Collector) RecordCall(op string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.callsTotal.WithLabelValues(op, result).Inc()
	c.callLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCancellation counts an explicit cancellation of kind.
func (c *Collector) RecordCancellation(kind string) {
	c.cancellations.WithLabelValues(kind).Inc()
}

// RecordVolume adds a settled amount. Amounts beyond float64 precision are
// approximated.
func (c *Collector) RecordVolume(op string, asset string, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	c.volume.WithLabelValues(op, asset).Add(f)
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

// NewNoOpCollector creates a collector that records nothing.
func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (*NoOpCollector) RecordCall(op string, d time.Duration, err error)       {}
func (*NoOpCollector) RecordCancellation(kind string)                         {}
func (*NoOpCollector) RecordVolume(op string, asset string, amount *big.Int) {}
