// Package metrics exposes the Hub's Prometheus collectors, grounded on the
// instrumentation pattern from the retrieval pack's metrics package: a
// package-level Registry, counters/histograms registered once in init, an
// HTTP middleware recording request counts and latency, and small Record*
// helpers called from the domain packages that care about a specific
// outcome (project lifecycle, workflow runs, node runs, events).
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Hub-specific collector, kept separate from the
// default global registry so /metrics output is limited to what this
// process actually emits.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hub",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hub",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hub",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	projectTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hub",
		Subsystem: "project",
		Name:      "status_transitions_total",
		Help:      "Total number of project lifecycle status transitions.",
	}, []string{"to_status"})

	projectsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hub",
		Subsystem: "project",
		Name:      "count",
		Help:      "Current number of projects, by status.",
	}, []string{"status"})

	workflowRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hub",
		Subsystem: "workflow",
		Name:      "runs_total",
		Help:      "Total number of workflow runs, by final status.",
	}, []string{"status"})

	workflowRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hub",
		Subsystem: "workflow",
		Name:      "run_duration_seconds",
		Help:      "Duration of a workflow run from start to terminal status.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"status"})

	nodeRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hub",
		Subsystem: "workflow",
		Name:      "node_runs_total",
		Help:      "Total number of node run attempts, by final status.",
	}, []string{"status"})

	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hub",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total number of events committed to the store, by whether the bus publish succeeded immediately.",
	}, []string{"bus_outcome"})

	federationChildren = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hub",
		Subsystem: "federation",
		Name:      "child_count",
		Help:      "Current number of registered child Hubs, by status.",
	}, []string{"status"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		projectTransitions,
		projectsByStatus,
		workflowRuns,
		workflowRunDuration,
		nodeRuns,
		eventsPublished,
		federationChildren,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// InstrumentHandler wraps an HTTP handler with request-count and latency
// collection. /metrics itself is excluded to avoid the collector scraping
// its own request.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordProjectTransition records a project moving to a new lifecycle
// status.
func RecordProjectTransition(toStatus string) {
	projectTransitions.WithLabelValues(toStatus).Inc()
}

// SetProjectsByStatus replaces the project-count gauge for a status with an
// absolute value. Nothing in the Hub calls it.
func SetProjectsByStatus(status string, count float64) {
	projectsByStatus.WithLabelValues(status).Set(count)
}

// RecordWorkflowRun records a workflow run reaching a terminal status.
func RecordWorkflowRun(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	workflowRuns.WithLabelValues(status).Inc()
	workflowRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordNodeRun records a single node run attempt reaching a terminal
// status (SUCCEEDED, FAILED, or SKIPPED).
func RecordNodeRun(status string) {
	nodeRuns.WithLabelValues(status).Inc()
}

// RecordEventPublished records an event commit, tagged with whether the
// immediate bus publish succeeded ("ok") or was queued for retry ("queued").
func RecordEventPublished(busOutcome string) {
	eventsPublished.WithLabelValues(busOutcome).Inc()
}

// SetFederationChildren replaces the federation child-count gauge for a
// status with an absolute value, called after a catalog list scan.
func SetFederationChildren(status string, count float64) {
	federationChildren.WithLabelValues(status).Set(count)
}

// canonicalPath collapses a URL path's UUID/slug segments so the
// requests_total label cardinality stays bounded to route shape rather than
// growing with every distinct resource id ever requested.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}

	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if looksLikeIdentifier(p) {
			out = append(out, ":id")
			continue
		}
		out = append(out, p)
	}
	return "/" + strings.Join(out, "/")
}

// looksLikeIdentifier reports whether a path segment is a UUID or other
// resource identifier rather than a fixed route word, using length and
// digit-presence as a cheap heuristic — good enough for metric label
// collapsing, not for routing decisions.
func looksLikeIdentifier(segment string) bool {
	if len(segment) < 8 {
		return false
	}
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return strings.Count(segment, "-") >= 2
}
