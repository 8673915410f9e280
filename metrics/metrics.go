// Package metrics exports the service counters to Prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "elearning"

// Secondary write targets that may fail after a primary write succeeded.
const (
	TargetMirror  = "user_mirror"
	TargetCounter = "course_counter"
	TargetSummary = "enrollment_summary"
)

// Metrics groups the counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enrollments     *prometheus.CounterVec
	secondaryFails  *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	lessonsComplete prometheus.Counter
	reconciled      *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Enroll calls by outcome (created, existing, race).",
		}, []string{"outcome"}),
		secondaryFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secondary_write_failures_total",
			Help:      "Best-effort writes that failed after the primary write succeeded.",
		}, []string{"target"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Payment verifications by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by outcome.",
		}, []string{"outcome"}),
		lessonsComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lessons_completed_total",
			Help:      "Lesson events that resulted in a completed lesson.",
		}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Derived values recomputed by reconciliation, by kind and whether they drifted.",
		}, []string{"kind", "drifted"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	collectors := []prometheus.Collector{
		m.enrollments, m.secondaryFails, m.verifications, m.notifications,
		m.lessonsComplete, m.reconciled, m.requests, m.requestDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Enrollment(outcome string) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SecondaryFailure(target string) {
	if m == nil {
		return
	}
	m.secondaryFails.WithLabelValues(target).Inc()
}

func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LessonCompleted() {
	if m == nil {
		return
	}
	m.lessonsComplete.Inc()
}

func (m *Metrics) Reconciled(kind string, drifted bool) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(kind, fmt.Sprint(drifted)).Inc()
}

func (m *Metrics) Request(method string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, fmt.Sprint(code)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(seconds)
}
