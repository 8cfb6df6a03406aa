package interceptors

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/zeuswire/internal/core/invocation"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFault   = "fault"
)

// Metrics records invocation counts and latencies per operation.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zeuswire",
			Name:      "invocations_total",
			Help:      "Invocations that passed a wire, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zeuswire",
			Name:      "invocation_duration_seconds",
			Help:      "Time spent below the metrics interceptor.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{m.invocations, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Name returns the interceptor name
func (m *Metrics) Name() string {
	return "metrics"
}

// Priority returns the interceptor priority
func (m *Metrics) Priority() int {
	return 100 // Innermost, measures the rest of the chain
}

func (m *Metrics) Invoke(ctx context.Context, msg *invocation.Message, next invocation.Invoker) *invocation.Message {
	operation := operationName(msg)
	timer := prometheus.NewTimer(m.duration.WithLabelValues(operation))
	resp := next.Invoke(ctx, msg)
	timer.ObserveDuration()

	outcome := OutcomeSuccess
	if resp.IsFault() {
		outcome = OutcomeFault
	}
	m.invocations.WithLabelValues(operation, outcome).Inc()
	return resp
}
