// Package metrics exposes Prometheus collectors for the task pipeline.
package metrics

import (
	"cloudsync/core/queue"
	"cloudsync/core/synctask"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cloudsync"

// Metrics groups the task pipeline collectors.
type Metrics struct {
	submitted *prometheus.CounterVec
	acked     *prometheus.CounterVec
	bytes     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Tasks admitted to the queue by kind.",
		}, []string{"kind"}),
		acked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_acked_total",
			Help:      "Tasks acked by kind and final state.",
		}, []string{"kind", "state"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_transferred_total",
			Help:      "Bytes copied by successful transfers.",
		}),
	}
	reg.MustRegister(m.submitted, m.acked, m.bytes)
	return m
}

// Attach subscribes the collectors to queue signals and exports the queue
// depth as gauges.
func (m *Metrics) Attach(reg prometheus.Registerer, q *queue.Queue) {
	q.OnSubmitted(m.observeSubmitted)
	q.OnAcked(m.observeAcked)
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_tasks",
			Help:      "Tasks waiting for a worker.",
		}, func() float64 { return float64(q.Stats().Pending) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_running_tasks",
			Help:      "Tasks currently executed by workers.",
		}, func() float64 { return float64(q.Stats().Running) }),
	)
}

func (m *Metrics) observeSubmitted(t synctask.Task) {
	m.submitted.WithLabelValues(t.Kind().String()).Inc()
}

func (m *Metrics) observeAcked(t synctask.Task) {
	state := t.Info().State()
	m.acked.WithLabelValues(t.Kind().String(), state.String()).Inc()
	if c, ok := t.(synctask.CopyTask); ok && state == synctask.Successful {
		m.bytes.Add(float64(c.Copy().BytesTransferred))
	}
}
