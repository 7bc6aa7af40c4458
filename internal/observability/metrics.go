package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. Each Metrics owns
// its registry, so several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry
	window   *stageWindow

	Requests           *prometheus.CounterVec
	UpstreamErrors     *prometheus.CounterVec
	RetrievalFailures  prometheus.Counter
	FactsRetrieved     prometheus.Histogram
	StreamEvents       *prometheus.CounterVec
	StreamLinesSkipped prometheus.Counter
	StageLatency       *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		window:   newStageWindow(256),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Pipeline requests by transport and mode.",
		}, []string{"transport", "mode"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Inference backend failures by kind.",
		}, []string{"kind"}),
		RetrievalFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_failures_total",
			Help:      "Knowledge store loads that failed and fell back to no facts.",
		}),
		FactsRetrieved: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "facts_retrieved",
			Help:      "Number of ranked facts per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		}),
		StreamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Stream relay events by type.",
		}, []string{"type"}),
		StreamLinesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_lines_skipped_total",
			Help:      "Streamed reply lines that did not decode and were dropped.",
		}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Pipeline stage latency in milliseconds.",
			Buckets:   []float64{1, 5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 120000},
		}, []string{"stage"}),
	}
}

// ObserveStage records d for stage in both the histogram and the rolling window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.window.Observe(stage, ms)
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.window.ObserveIndicator(name)
}

func (m *Metrics) ObserveRequest(transport, mode string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(transport, mode).Inc()
}

func (m *Metrics) ObserveUpstreamError(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.UpstreamErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRetrieval(facts int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.RetrievalFailures.Inc()
	}
	m.FactsRetrieved.Observe(float64(facts))
}

func (m *Metrics) ObserveStreamEvent(kind string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(kind).Inc()
}

// ObserveSkippedStreamLine counts one undecodable line of a streamed reply.
func (m *Metrics) ObserveSkippedStreamLine() {
	if m == nil {
		return
	}
	m.StreamLinesSkipped.Inc()
	m.window.ObserveIndicator("stream_line_skipped")
}

// SnapshotStages returns rolling latency statistics for /v1/perf/latency.
func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.window.Snapshot()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
