package metrics

import (
	"net/http"
	"time"

	"github.com/eleven-am/voice-stt/internal/transcription"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stt"

// Metrics holds every collector exported by the service.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsOpened prometheus.Counter
	SessionsClosed prometheus.Counter
	ActiveSessions prometheus.Gauge
	SessionLength  prometheus.Histogram

	// Job metrics
	JobsSubmitted  *prometheus.CounterVec
	JobsCompleted  *prometheus.CounterVec
	JobsFailed     *prometheus.CounterVec
	JobsSuperseded prometheus.Counter
	ResultsDropped prometheus.Counter
	QueueDepth     prometheus.Gauge
	EngineLatency  *prometheus.HistogramVec

	// Client messages
	TranscriptsSent *prometheus.CounterVec
	KeepalivesSent  prometheus.Counter
	FinalTimeouts   prometheus.Counter
}

// New builds the collectors on a private registry so that several instances
// can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Total number of streaming sessions accepted",
		}),
		SessionsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of streaming sessions closed",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of open streaming sessions",
		}),
		SessionLength: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of streaming sessions",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),

		JobsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Transcription jobs submitted by profile",
		}, []string{"profile"}),
		JobsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Transcription jobs completed by profile",
		}, []string{"profile"}),
		JobsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Transcription jobs that failed by profile",
		}, []string{"profile"}),
		JobsSuperseded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_superseded_total",
			Help:      "Interim jobs skipped because a newer one was queued",
		}),
		ResultsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_dropped_total",
			Help:      "Results discarded because their session was gone or stale",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Jobs waiting for the transcription worker",
		}),
		EngineLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_duration_seconds",
			Help:      "Time spent in the recognition engine per job",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"profile"}),

		TranscriptsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_sent_total",
			Help:      "Transcript messages delivered to clients",
		}, []string{"final"}),
		KeepalivesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalives_sent_total",
			Help:      "Keepalive messages sent to clients",
		}),
		FinalTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "final_timeouts_total",
			Help:      "Finalizations that gave up waiting for the final result",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobCompleted(profile transcription.Profile, elapsed time.Duration) {
	m.JobsCompleted.WithLabelValues(profile.String()).Inc()
	m.EngineLatency.WithLabelValues(profile.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) JobFailed(profile transcription.Profile) {
	m.JobsFailed.WithLabelValues(profile.String()).Inc()
}

func (m *Metrics) JobSuperseded() {
	m.JobsSuperseded.Inc()
}

func (m *Metrics) JobSubmitted(profile transcription.Profile, queueDepth int) {
	m.JobsSubmitted.WithLabelValues(profile.String()).Inc()
	m.QueueDepth.Set(float64(queueDepth))
}

func (m *Metrics) QueueDrained(queueDepth int) {
	m.QueueDepth.Set(float64(queueDepth))
}

func (m *Metrics) SessionOpened() {
	m.SessionsOpened.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed(duration time.Duration) {
	m.SessionsClosed.Inc()
	m.ActiveSessions.Dec()
	m.SessionLength.Observe(duration.Seconds())
}

func (m *Metrics) TranscriptSent(final bool) {
	label := "false"
	if final {
		label = "true"
	}
	m.TranscriptsSent.WithLabelValues(label).Inc()
}

func (m *Metrics) KeepaliveSent() {
	m.KeepalivesSent.Inc()
}

func (m *Metrics) FinalTimedOut() {
	m.FinalTimeouts.Inc()
}

func (m *Metrics) ResultDropped() {
	m.ResultsDropped.Inc()
}
