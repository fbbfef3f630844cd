// Package metrics exposes Prometheus counters for the post lifecycle and scheduler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PostsGenerated    *prometheus.CounterVec
	PostTransitions   *prometheus.CounterVec
	PublishFailures   prometheus.Counter
	ScheduleFires     prometheus.Counter
	NotificationsSent *prometheus.CounterVec
}

// New creates the counters and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		PostsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_posts_generated_total",
			Help: "Posts created by the generator, by content source",
		}, []string{"source"}),
		PostTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_post_transitions_total",
			Help: "Post lifecycle transitions by resulting status",
		}, []string{"status"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postpilot_publish_failures_total",
			Help: "Approvals whose publish call failed",
		}),
		ScheduleFires: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postpilot_schedule_fires_total",
			Help: "Automatic generation triggers fired by the scheduler",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_notifications_total",
			Help: "Pending post notifications by result",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.PostsGenerated,
		m.PostTransitions,
		m.PublishFailures,
		m.ScheduleFires,
		m.NotificationsSent,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncGenerated(source string) {
	if m == nil || m.PostsGenerated == nil {
		return
	}
	m.PostsGenerated.WithLabelValues(source).Inc()
}

func (m *Metrics) IncTransition(status string) {
	if m == nil || m.PostTransitions == nil {
		return
	}
	m.PostTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncPublishFailure() {
	if m == nil || m.PublishFailures == nil {
		return
	}
	m.PublishFailures.Inc()
}

func (m *Metrics) IncScheduleFire() {
	if m == nil || m.ScheduleFires == nil {
		return
	}
	m.ScheduleFires.Inc()
}

func (m *Metrics) IncNotification(result string) {
	if m == nil || m.NotificationsSent == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(result).Inc()
}
