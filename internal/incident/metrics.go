package incident

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/alarmhook/internal/logquery"
)

// Metrics holds Prometheus metrics for the incident pipeline.
type Metrics struct {
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	StageDuration      *prometheus.HistogramVec
	StageErrorsTotal   *prometheus.CounterVec
	QueryOutcomesTotal *prometheus.CounterVec
	QueryPolls         prometheus.Histogram
	QueryRows          prometheus.Histogram
	ReportsPersisted   prometheus.Counter
	TriggersTotal      *prometheus.CounterVec
	NotifyTotal        *prometheus.CounterVec
}

// NewMetrics registers and returns incident metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarmhook_invocations_total",
			Help: "Total pipeline invocations by final status and error class.",
		}, []string{"status", "error_class"}),
		InvocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alarmhook_invocation_duration_seconds",
			Help:    "Duration of pipeline invocations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alarmhook_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"stage"}),
		StageErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarmhook_stage_errors_total",
			Help: "Total failed pipeline stages.",
		}, []string{"stage"}),
		QueryOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarmhook_logquery_outcomes_total",
			Help: "Log query runs by outcome.",
		}, []string{"outcome"}),
		QueryPolls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alarmhook_logquery_polls",
			Help:    "Status polls per log query run.",
			Buckets: prometheus.LinearBuckets(0, 2, 11), // 0 .. 20
		}),
		QueryRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alarmhook_logquery_rows",
			Help:    "Rows returned per log query run.",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 .. 100
		}),
		ReportsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmhook_reports_persisted_total",
			Help: "Total report pairs written to the object store.",
		}),
		TriggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarmhook_remediation_triggers_total",
			Help: "Total automation runs started by parameter strategy.",
		}, []string{"strategy"}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarmhook_notifications_total",
			Help: "Total incident notifications by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.InvocationsTotal,
		m.InvocationDuration,
		m.StageDuration,
		m.StageErrorsTotal,
		m.QueryOutcomesTotal,
		m.QueryPolls,
		m.QueryRows,
		m.ReportsPersisted,
		m.TriggersTotal,
		m.NotifyTotal,
	)

	return m
}

// Hooks returns pipeline Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnStage: func(stage string, duration float64, err error) {
			m.StageDuration.WithLabelValues(stage).Observe(duration)
			if err != nil {
				m.StageErrorsTotal.WithLabelValues(stage).Inc()
			}
		},
		OnQuery: func(outcome logquery.Outcome, polls, rows int) {
			m.QueryOutcomesTotal.WithLabelValues(string(outcome)).Inc()
			if outcome == logquery.OutcomeSkipped {
				return
			}
			m.QueryPolls.Observe(float64(polls))
			m.QueryRows.Observe(float64(rows))
		},
		OnComplete: func(e *CompleteEvent) {
			m.InvocationsTotal.WithLabelValues(string(e.Status), string(e.ErrorClass)).Inc()
			m.InvocationDuration.WithLabelValues(string(e.Status)).Observe(e.Duration)
			if e.Persisted {
				m.ReportsPersisted.Inc()
			}
			if e.Triggered {
				m.TriggersTotal.WithLabelValues(string(e.Strategy)).Inc()
			}
		},
	}
}
