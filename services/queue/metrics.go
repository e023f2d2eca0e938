package queue

import "github.com/prometheus/client_golang/prometheus"

// Job statuses of the processed counter.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics counts jobs going through the queue.
type Metrics struct {
	Enqueued  *prometheus.CounterVec
	Processed *prometheus.CounterVec
}

// NewMetrics registers the job counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warsha",
			Subsystem: "jobs",
			Name:      "enqueued_total",
			Help:      "Number of jobs published to the queue.",
		}, []string{"kind"}),
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warsha",
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Number of job attempts run by workers.",
		}, []string{"kind", "status"}),
	}
	reg.MustRegister(m.Enqueued, m.Processed)
	return m
}
