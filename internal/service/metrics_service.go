package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsService registers and exposes the domain-level Prometheus
// collectors. HTTP-level metrics live in the middleware.
type MetricsService struct {
	NotificationsDispatched *prometheus.CounterVec
	FanoutFailures          prometheus.Counter
	Enrollments             prometheus.Counter
	SubmissionsRecorded     *prometheus.CounterVec
}

// NewMetricsService builds the collectors and registers them with the
// provided registry.
func NewMetricsService(registry prometheus.Registerer) *MetricsService {
	m := &MetricsService{
		NotificationsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "notifications_dispatched_total",
			Help:      "Notifications written per presentation lifecycle event.",
		}, []string{"event"}),
		FanoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "notification_fanout_failures_total",
			Help:      "Fan-out jobs that failed after exhausting retries.",
		}),
		Enrollments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "course_enrollments_total",
			Help:      "Successful course enrollments.",
		}),
		SubmissionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "submissions_recorded_total",
			Help:      "Accepted submissions by work item kind.",
		}, []string{"kind"}),
	}

	if registry != nil {
		registry.MustRegister(m.NotificationsDispatched, m.FanoutFailures, m.Enrollments, m.SubmissionsRecorded)
	}
	return m
}

// ObserveFanout records a completed fan-out.
func (m *MetricsService) ObserveFanout(event string, recipients int) {
	if m == nil {
		return
	}
	m.NotificationsDispatched.WithLabelValues(event).Add(float64(recipients))
}

// ObserveFanoutFailure records a fan-out that could not be delivered.
func (m *MetricsService) ObserveFanoutFailure() {
	if m == nil {
		return
	}
	m.FanoutFailures.Inc()
}

// ObserveEnrollment records a successful enrollment.
func (m *MetricsService) ObserveEnrollment() {
	if m == nil {
		return
	}
	m.Enrollments.Inc()
}

// ObserveSubmission records an accepted submission.
func (m *MetricsService) ObserveSubmission(kind string) {
	if m == nil {
		return
	}
	m.SubmissionsRecorded.WithLabelValues(kind).Inc()
}
