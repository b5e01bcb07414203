// Package metrics registers the counters/gauges/histograms named in the
// observability surface, one registry per process, exposed at /metrics
// via promhttp — grounded on cycle-start-hosting and jordigilh-kubernaut,
// both direct prometheus/client_golang dependents.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the /metrics HTTP handler for a registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// HTTPMetrics are request-path counters labeled by method, endpoint, and
// status. None of the cmd/ binaries constructs or registers them, so
// http_requests_total is not exposed by any service.
type HTTPMetrics struct {
	RequestsTotal *prometheus.CounterVec
}

func NewHTTPMetrics(reg *prometheus.Registry) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests handled, labeled by method, endpoint, and status.",
		}, []string{"method", "endpoint", "status"}),
	}
	reg.MustRegister(m.RequestsTotal)
	return m
}

// IngestionMetrics backs Alert Ingestion's /metrics surface.
type IngestionMetrics struct {
	AlertsReceivedTotal   *prometheus.CounterVec
	AlertsCorrelatedTotal *prometheus.CounterVec
	ProcessingSeconds     prometheus.Histogram
}

func NewIngestionMetrics(reg *prometheus.Registry) *IngestionMetrics {
	m := &IngestionMetrics{
		AlertsReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_received_total",
			Help: "Total alerts accepted by ingestion, by severity.",
		}, []string{"severity"}),
		AlertsCorrelatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_correlated_total",
			Help: "Total alerts processed through correlation, by result.",
		}, []string{"result"}),
		ProcessingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "alert_processing_seconds",
			Help: "Time to ingest and correlate a single alert.",
		}),
	}
	reg.MustRegister(m.AlertsReceivedTotal, m.AlertsCorrelatedTotal, m.ProcessingSeconds)
	return m
}

// IncidentMetrics backs Incident Management's /metrics surface.
type IncidentMetrics struct {
	IncidentsCreatedTotal *prometheus.CounterVec
	IncidentsByStatus     *prometheus.GaugeVec
	MTTASeconds           prometheus.Histogram
	MTTRSeconds           prometheus.Histogram
}

func NewIncidentMetrics(reg *prometheus.Registry) *IncidentMetrics {
	m := &IncidentMetrics{
		IncidentsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incidents_created_total",
			Help: "Total incidents created, by severity.",
		}, []string{"severity"}),
		IncidentsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "incidents_by_status",
			Help: "Current incident count by status.",
		}, []string{"status"}),
		MTTASeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "incident_mtta_seconds",
			Help: "Observed mean time to acknowledge, in seconds.",
		}),
		MTTRSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "incident_mttr_seconds",
			Help: "Observed mean time to resolve, in seconds.",
		}),
	}
	reg.MustRegister(m.IncidentsCreatedTotal, m.IncidentsByStatus, m.MTTASeconds, m.MTTRSeconds)
	return m
}

// OnCallMetrics backs On-Call & Escalation's /metrics surface.
// RequestsTotal is registered but no handler or middleware increments it,
// so oncall_requests_total stays empty.
type OnCallMetrics struct {
	RequestsTotal    *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	LookupsTotal     *prometheus.CounterVec
	ActiveSchedules  prometheus.Gauge
	ActiveOverrides  prometheus.Gauge
	RotationChanges  *prometheus.CounterVec
}

func NewOnCallMetrics(reg *prometheus.Registry) *OnCallMetrics {
	m := &OnCallMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_requests_total",
			Help: "Total on-call service requests, by method, endpoint, and status.",
		}, []string{"method", "endpoint", "status"}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_escalations_total",
			Help: "Total escalations, by team.",
		}, []string{"team"}),
		LookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_lookups_total",
			Help: "Total current-on-call lookups, by team.",
		}, []string{"team"}),
		ActiveSchedules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oncall_active_schedules",
			Help: "Current number of configured schedules.",
		}),
		ActiveOverrides: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oncall_overrides_active",
			Help: "Current number of non-expired overrides.",
		}),
		RotationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_rotation_changes_total",
			Help: "Total detected primary-rotation changes, by team.",
		}, []string{"team"}),
	}
	reg.MustRegister(m.RequestsTotal, m.EscalationsTotal, m.LookupsTotal,
		m.ActiveSchedules, m.ActiveOverrides, m.RotationChanges)
	return m
}

// NotificationMetrics backs the Notification service's /metrics surface.
type NotificationMetrics struct {
	SentTotal *prometheus.CounterVec
}

func NewNotificationMetrics(reg *prometheus.Registry) *NotificationMetrics {
	m := &NotificationMetrics{
		SentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total notification delivery attempts, by channel and status.",
		}, []string{"channel", "status"}),
	}
	reg.MustRegister(m.SentTotal)
	return m
}
