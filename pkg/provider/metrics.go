package provider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives broker telemetry. Hooks run inline with every call, so
// implementations must be cheap.
type Collector interface {
	ObserveCall(store, operation string, elapsed time.Duration)
	IncCallError(store, kind string)
	IncDial(store, result string)
	SetPhysicalConnections(n int)
}

type noopCollector struct{}

// NoopCollector returns a collector that discards all metrics.
func NoopCollector() Collector {
	return noopCollector{}
}

func (noopCollector) ObserveCall(string, string, time.Duration) {}
func (noopCollector) IncCallError(string, string)               {}
func (noopCollector) IncDial(string, string)                    {}
func (noopCollector) SetPhysicalConnections(int)                {}

// Dial results reported through IncDial.
const (
	DialSuccess = "success"
	DialFailure = "failure"
)

// PrometheusCollector exposes broker metrics via Prometheus.
type PrometheusCollector struct {
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec
	dials        *prometheus.CounterVec
	physical     prometheus.Gauge
}

// NewPrometheusCollector registers the broker metrics with reg. Metrics that
// are already registered are reused, so several providers may share one
// registerer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	callDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redb_broker_call_duration_seconds",
		Help:    "Duration of operations dispatched onto store connections.",
		Buckets: prometheus.DefBuckets,
	}, []string{"store", "operation"}))
	if err != nil {
		return nil, err
	}

	callErrors, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redb_broker_call_errors_total",
		Help: "Number of suppressed operation failures by error kind.",
	}, []string{"store", "kind"}))
	if err != nil {
		return nil, err
	}

	dials, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redb_broker_dials_total",
		Help: "Number of physical connection attempts by result.",
	}, []string{"store", "result"}))
	if err != nil {
		return nil, err
	}

	physical, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "redb_broker_physical_connections",
		Help: "Number of open physical store connections.",
	}))
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		callDuration: callDuration,
		callErrors:   callErrors,
		dials:        dials,
		physical:     physical,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// ObserveCall records the duration of one dispatched operation.
func (p *PrometheusCollector) ObserveCall(store, operation string, elapsed time.Duration) {
	if p == nil || p.callDuration == nil {
		return
	}
	p.callDuration.WithLabelValues(store, operation).Observe(elapsed.Seconds())
}

// IncCallError counts a suppressed failure.
func (p *PrometheusCollector) IncCallError(store, kind string) {
	if p == nil || p.callErrors == nil {
		return
	}
	p.callErrors.WithLabelValues(store, kind).Inc()
}

// IncDial counts a connection attempt.
func (p *PrometheusCollector) IncDial(store, result string) {
	if p == nil || p.dials == nil {
		return
	}
	p.dials.WithLabelValues(store, result).Inc()
}

// SetPhysicalConnections updates the open connection gauge.
func (p *PrometheusCollector) SetPhysicalConnections(n int) {
	if p == nil || p.physical == nil {
		return
	}
	p.physical.Set(float64(n))
}
