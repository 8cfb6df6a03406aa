package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/zeuswire/internal/core/events/bus"
)

// eventMetrics observes the node's event bus.
type eventMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	handling  *prometheus.HistogramVec
}

var _ bus.Observer = (*eventMetrics)(nil)

func newEventMetrics(reg prometheus.Registerer) (*eventMetrics, error) {
	m := &eventMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zeuswire",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Runtime events published, by type.",
		}, []string{"type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zeuswire",
			Subsystem: "events",
			Name:      "handler_failures_total",
			Help:      "Publications where at least one handler failed, by type.",
		}, []string{"type"}),
		handling: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zeuswire",
			Subsystem: "events",
			Name:      "handling_seconds",
			Help:      "Time spent delivering an event to its handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
	for _, c := range []prometheus.Collector{m.published, m.failed, m.handling} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *eventMetrics) OnPublish(eventType string, _ bus.Event) {
	m.published.WithLabelValues(eventType).Inc()
}

func (m *eventMetrics) OnDelivered(eventType string, _ int, err error, took time.Duration) {
	m.handling.WithLabelValues(eventType).Observe(took.Seconds())
	if err != nil {
		m.failed.WithLabelValues(eventType).Inc()
	}
}
