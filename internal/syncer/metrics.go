package syncer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	status       *prometheus.GaugeVec
	pushes       prometheus.Counter
	pushFailures prometheus.Counter
	merges       prometheus.Counter
}

// NewMetrics creates the sync collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gastrack",
			Subsystem: "sync",
			Name:      "status",
			Help:      "1 for the current sync status, 0 for the others.",
		}, []string{"state"}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gastrack",
			Subsystem: "sync",
			Name:      "pushes_total",
			Help:      "Local changes mirrored to the remote store.",
		}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gastrack",
			Subsystem: "sync",
			Name:      "push_failures_total",
			Help:      "Local changes that failed to reach the remote store.",
		}),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gastrack",
			Subsystem: "sync",
			Name:      "remote_merges_total",
			Help:      "Remote snapshots merged into the local records.",
		}),
	}
	reg.MustRegister(m.status, m.pushes, m.pushFailures, m.merges)
	return m
}

func (m *Metrics) setStatus(s Status) {
	if m == nil {
		return
	}
	for _, st := range allStatuses {
		v := 0.0
		if st == s {
			v = 1
		}
		m.status.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) pushed(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.pushFailures.Inc()
		return
	}
	m.pushes.Inc()
}

func (m *Metrics) merged() {
	if m == nil {
		return
	}
	m.merges.Inc()
}
