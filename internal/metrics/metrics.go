// Package metrics exposes Prometheus collectors for the empire server.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	bootstrapPhase             *prometheus.GaugeVec
	bootstrapTotal             *prometheus.CounterVec
	dependencyReachable        *prometheus.GaugeVec
	dependencyProbeSeconds     *prometheus.HistogramVec
	capabilityAttemptsTotal    *prometheus.CounterVec
	invocationsTotal           *prometheus.CounterVec
	hookRunsTotal              *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; serverless cold starts
// call it on every pipeline build.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		bootstrapPhase = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "empire_bootstrap_phase",
				Help: "1 for the phase the latest bootstrap attempt ended in, 0 otherwise.",
			},
			[]string{"phase"},
		)

		bootstrapTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "empire_bootstrap_total",
				Help: "Total bootstrap attempts, labeled by final phase.",
			},
			[]string{"phase"},
		)

		dependencyReachable = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "empire_dependency_reachable",
				Help: "1 when the dependency answered its last liveness probe, 0 otherwise.",
			},
			[]string{"dependency"},
		)

		dependencyProbeSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "empire_dependency_probe_seconds",
				Help:    "Histogram of dependency liveness probe durations.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 3, 5},
			},
			[]string{"dependency"},
		)

		capabilityAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "empire_capability_attempts_total",
				Help: "Optional subsystem installation attempts, labeled by capability and outcome.",
			},
			[]string{"capability", "outcome"},
		)

		invocationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "empire_serverless_invocations_total",
				Help: "Serverless invocations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		hookRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "empire_post_ready_hook_runs_total",
				Help: "Post-ready hook executions, labeled by hook and outcome.",
			},
			[]string{"hook", "outcome"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveBootstrap records the phase a bootstrap attempt ended in.
func ObserveBootstrap(final string, phases []string) {
	Init()
	for _, p := range phases {
		value := 0.0
		if p == final {
			value = 1
		}
		bootstrapPhase.WithLabelValues(p).Set(value)
	}
	bootstrapTotal.WithLabelValues(final).Inc()
}

// ObserveDependency records the outcome and latency of a liveness probe.
func ObserveDependency(name string, reachable bool, duration time.Duration) {
	Init()
	value := 0.0
	if reachable {
		value = 1
	}
	dependencyReachable.WithLabelValues(name).Set(value)
	dependencyProbeSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

// ObserveCapability counts an optional subsystem installation attempt.
func ObserveCapability(name string, err error) {
	Init()
	capabilityAttemptsTotal.WithLabelValues(name, outcome(err)).Inc()
}

// ObserveInvocation counts a serverless invocation by outcome
// ("ok", "preflight", "fallback", "error").
func ObserveInvocation(result string) {
	Init()
	invocationsTotal.WithLabelValues(result).Inc()
}

// ObserveHook counts a post-ready hook run.
func ObserveHook(name string, err error) {
	Init()
	hookRunsTotal.WithLabelValues(name, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
