// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "erp"

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	AdmissionsTotal     *prometheus.CounterVec
	AdmissionDuration   *prometheus.HistogramVec
	AllocationRetries   prometheus.Counter
	SeatRangeExhausted  *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	EventsPublished     *prometheus.CounterVec
	EventHandlerRuns    *prometheus.CounterVec
	CacheBreakerState   *prometheus.GaugeVec
	SeatsUsed           *prometheus.GaugeVec
	SeatsRemaining      *prometheus.GaugeVec
	JobRuns             *prometheus.CounterVec
	JobDuration         *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry. withRuntime adds the Go
// and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AdmissionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Admission attempts by outcome (admitted or error kind).",
		}, []string{"outcome"}),
		AdmissionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_duration_seconds",
			Help:      "End-to-end admission latency including retries.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		AllocationRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_retries_total",
			Help:      "Admission transactions retried after an allocation conflict.",
		}),
		SeatRangeExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seat_range_exhausted_total",
			Help:      "Admissions rejected because the department range was full.",
		}, []string{"department"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published on the in-process bus.",
		}, []string{"type"}),
		EventHandlerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_runs_total",
			Help:      "Event handler executions by type and result.",
		}, []string{"type", "result"}),
		CacheBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
		SeatsUsed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seats_used",
			Help:      "Sequences issued per program and join year, refreshed by the seat usage job.",
		}, []string{"program", "join_year"}),
		SeatsRemaining: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seats_remaining",
			Help:      "Sequences left in the department range per program and join year.",
		}, []string{"program", "join_year"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Background job runs by job and result.",
		}, []string{"job", "result"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_job_duration_seconds",
			Help:      "Background job run time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAdmission records one admission outcome.
func (m *Metrics) ObserveAdmission(outcome string, elapsed time.Duration) {
	m.AdmissionsTotal.WithLabelValues(outcome).Inc()
	m.AdmissionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// IncAllocationRetry counts one conflict retry.
func (m *Metrics) IncAllocationRetry() {
	m.AllocationRetries.Inc()
}

// IncSeatRangeExhausted counts one exhaustion rejection.
func (m *Metrics) IncSeatRangeExhausted(department string) {
	m.SeatRangeExhausted.WithLabelValues(department).Inc()
}

// ObserveHTTPRequest records one served request. route is the mux pattern,
// never the raw path.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveEventPublished counts one published event.
func (m *Metrics) ObserveEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// ObserveEventHandled counts one handler run.
func (m *Metrics) ObserveEventHandled(eventType string, _ time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventHandlerRuns.WithLabelValues(eventType, result).Inc()
}

// SetBreakerState records a breaker state as its numeric value.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.CacheBreakerState.WithLabelValues(name).Set(float64(state))
}

// SetSeatUsage records the usage of one program's allocation key.
func (m *Metrics) SetSeatUsage(program string, joinYear, used, remaining int) {
	year := strconv.Itoa(joinYear)
	m.SeatsUsed.WithLabelValues(program, year).Set(float64(used))
	m.SeatsRemaining.WithLabelValues(program, year).Set(float64(remaining))
}

// ObserveJob records one background job run.
func (m *Metrics) ObserveJob(job string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
	m.JobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}
