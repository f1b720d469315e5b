package antrian

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the queue, cache and
// transport layers. It is safe for concurrent use and every method is a
// no-op on a nil receiver.
type MetricsCollector struct {
	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsPending   *prometheus.GaugeVec
	jobsRunning   *prometheus.GaugeVec
	jobsThrottled *prometheus.CounterVec

	cacheHits              *prometheus.CounterVec
	cacheMisses            *prometheus.CounterVec
	cacheGeneratorFailures *prometheus.CounterVec
	cacheEvictions         *prometheus.CounterVec

	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	retriesTotal        *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
	errorsTotal         *prometheus.CounterVec

	registerer prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)

	return &MetricsCollector{
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antrian_queue_jobs_total",
				Help: "Total number of queue jobs finished, by result",
			},
			[]string{"queue", "result"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "antrian_queue_job_duration_seconds",
				Help:    "Execution time of queue jobs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		jobsPending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "antrian_queue_jobs_pending",
				Help: "Number of jobs waiting for a free slot",
			},
			[]string{"queue"},
		),
		jobsRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "antrian_queue_jobs_processing",
				Help: "Number of jobs currently occupying a slot",
			},
			[]string{"queue"},
		),
		jobsThrottled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antrian_queue_jobs_throttled_total",
				Help: "Total number of jobs delayed by the per-second budget",
			},
			[]string{"queue"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antrian_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache", "tier"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antrian_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		cacheGeneratorFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antrian_cache_generator_failures_total",
				Help: "Total number of swallowed generator errors",
			},
			[]string{"cache"},
		),
		cacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antrian_cache_evictions_total",
				Help: "Total number of entries removed by a sweep",
			},
			[]string{"cache", "reason"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antrian_requests_total",
				Help: "Total number of transport calls made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "antrian_request_duration_seconds",
				Help:    "Duration of transport calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antrian_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "antrian_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antrian_errors_total",
				Help: "Total number of transport errors encountered",
			},
			[]string{"type", "method", "endpoint"},
		),
		registerer: registry,
	}
}

// Registerer returns the registerer the collectors were registered on.
func (mc *MetricsCollector) Registerer() prometheus.Registerer {
	if mc == nil {
		return nil
	}
	return mc.registerer
}

// RecordJob records a finished job and how long it ran.
func (mc *MetricsCollector) RecordJob(queue string, err error, duration time.Duration) {
	if mc == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "failure"
	}
	mc.jobsTotal.WithLabelValues(queue, result).Inc()
	mc.jobDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// RecordQueueDepth sets the pending and processing gauges.
func (mc *MetricsCollector) RecordQueueDepth(queue string, pending, processing int) {
	if mc == nil {
		return
	}

	mc.jobsPending.WithLabelValues(queue).Set(float64(pending))
	mc.jobsRunning.WithLabelValues(queue).Set(float64(processing))
}

// RecordThrottled increments the throttled-job counter.
func (mc *MetricsCollector) RecordThrottled(queue string) {
	if mc == nil {
		return
	}

	mc.jobsThrottled.WithLabelValues(queue).Inc()
}

// RecordCacheHit increments cache hit counter for a tier.
func (mc *MetricsCollector) RecordCacheHit(cache, tier string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(cache, tier).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(cache string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordGeneratorFailure increments the swallowed generator error counter.
func (mc *MetricsCollector) RecordGeneratorFailure(cache string) {
	if mc == nil {
		return
	}

	mc.cacheGeneratorFailures.WithLabelValues(cache).Inc()
}

// RecordEviction adds n removed entries for a reason (expired, tag, clear).
func (mc *MetricsCollector) RecordEviction(cache, reason string, n int) {
	if mc == nil || n <= 0 {
		return
	}

	mc.cacheEvictions.WithLabelValues(cache, reason).Add(float64(n))
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRetry increments retry counter.
func (mc *MetricsCollector) RecordRetry(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordCircuitBreakerState sets gauge to breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordError increments the error counter for an error type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}
