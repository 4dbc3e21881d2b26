// Package metrics holds the Prometheus collectors of the scheduling service.
// All Record methods are safe on a nil *Collector.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scheduling"

type Collector struct {
	registry *prometheus.Registry

	admissions        *prometheus.CounterVec
	admissionDuration *prometheus.HistogramVec
	lockWait          prometheus.Histogram
	transitions       *prometheus.CounterVec
	sweeperExpired    prometheus.Counter
	hookDeliveries    *prometheus.CounterVec
	hookDropped       prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Booking admission attempts by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		admissionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "admission_duration_seconds",
				Help:      "End to end duration of booking admissions",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "doctor_lock_wait_seconds",
			Help:      "Time spent waiting for the per-doctor serializer",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Appointment status transitions",
			},
			[]string{"from", "to"},
		),
		sweeperExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_expired_total",
			Help:      "Pending appointments cancelled by the sweeper",
		}),
		hookDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_deliveries_total",
				Help:      "Lifecycle hook deliveries by subscriber and outcome",
			},
			[]string{"subscriber", "outcome"},
		),
		hookDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_dropped_total",
			Help:      "Lifecycle events dropped because the dispatch queue was full",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.admissions,
		c.admissionDuration,
		c.lockWait,
		c.transitions,
		c.sweeperExpired,
		c.hookDeliveries,
		c.hookDropped,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordAdmission(op, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.admissions.WithLabelValues(op, outcome).Inc()
	c.admissionDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (c *Collector) RecordLockWait(d time.Duration) {
	if c == nil {
		return
	}
	c.lockWait.Observe(d.Seconds())
}

func (c *Collector) RecordTransition(from, to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) RecordExpired(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.sweeperExpired.Add(float64(n))
}

func (c *Collector) RecordHookDelivery(subscriber string, ok bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	c.hookDeliveries.WithLabelValues(subscriber, outcome).Inc()
}

func (c *Collector) RecordHookDropped() {
	if c == nil {
		return
	}
	c.hookDropped.Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
