// Package metrics holds the process-wide Prometheus registry and the
// counters/gauges named in spec §6 Observability. Nothing here binds an
// HTTP listener — health probes and dashboards are explicitly out of scope;
// the registry is read only through Gather, which the tests call.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the platform updates.
type Registry struct {
	reg *prometheus.Registry

	JobRunsTotal     *prometheus.CounterVec
	JobDurationSecs  *prometheus.HistogramVec
	JobLastSuccessTS *prometheus.GaugeVec
	JobLastFailureTS *prometheus.GaugeVec

	UpstreamRequestsTotal *prometheus.CounterVec
	UpstreamLatencySecs   *prometheus.HistogramVec

	WSConnectionState  prometheus.Gauge
	WSReconnectsTotal  prometheus.Counter

	SignalsEmittedTotal *prometheus.CounterVec
	AlertsSentTotal     *prometheus.CounterVec
	AlertsSuppressedTotal *prometheus.CounterVec

	IngestDroppedTotal *prometheus.CounterVec
}

// New builds a Registry with every metric registered against a fresh
// prometheus.Registry (never the global DefaultRegisterer, so tests can
// instantiate more than one without collision).
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		JobRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Completed job runs by job name and outcome.",
		}, []string{"job_name", "outcome"}),
		JobDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Job run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name"}),
		JobLastSuccessTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_job_last_success_unixtime",
			Help: "Unix timestamp of each job's last successful run.",
		}, []string{"job_name"}),
		JobLastFailureTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_job_last_failure_unixtime",
			Help: "Unix timestamp of each job's last failed run.",
		}, []string{"job_name"}),
		UpstreamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Upstream HTTP requests by upstream and status class.",
		}, []string{"upstream", "status"}),
		UpstreamLatencySecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream"}),
		WSConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsfeed_connection_state",
			Help: "Current websocket state: 0=Disconnected 1=Connecting 2=Subscribing 3=Live 4=Draining.",
		}),
		WSReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsfeed_reconnects_total",
			Help: "Total websocket reconnect attempts.",
		}),
		SignalsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_emitted_total",
			Help: "Signal events emitted by signal_type.",
		}, []string{"signal_type"}),
		AlertsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_sent_total",
			Help: "Alerts delivered by channel.",
		}, []string{"channel"}),
		AlertsSuppressedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_suppressed_total",
			Help: "Alerts suppressed by dedupe by channel.",
		}, []string{"channel"}),
		IngestDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_dropped_records_total",
			Help: "Records dropped during normalization, by upstream and reason.",
		}, []string{"upstream", "reason"}),
	}

	reg.MustRegister(
		m.JobRunsTotal, m.JobDurationSecs, m.JobLastSuccessTS, m.JobLastFailureTS,
		m.UpstreamRequestsTotal, m.UpstreamLatencySecs,
		m.WSConnectionState, m.WSReconnectsTotal,
		m.SignalsEmittedTotal, m.AlertsSentTotal, m.AlertsSuppressedTotal,
		m.IngestDroppedTotal,
	)
	return m
}

// Gather exposes the underlying registry's Gather for tests; never wired
// to an HTTP handler.
func (m *Registry) Gather() ([]*prometheus.MetricFamily, error) {
	return m.reg.Gather()
}
