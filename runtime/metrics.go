package runtime

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/fibre-go/native"
)

// Metrics holds the runtime's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	callsStarted   prometheus.Counter
	callsCompleted *prometheus.CounterVec
	callsInFlight  prometheus.Gauge
	objects        prometheus.Gauge
	interfaces     prometheus.Gauge
	discoveries    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibre",
			Name:      "calls_started_total",
			Help:      "Remote function calls issued to the engine.",
		}),
		callsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fibre",
			Name:      "calls_completed_total",
			Help:      "Remote function calls completed, by status.",
		}, []string{"status"}),
		callsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fibre",
			Name:      "calls_in_flight",
			Help:      "Remote function calls awaiting completion.",
		}),
		objects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fibre",
			Name:      "objects",
			Help:      "Live remote object proxies.",
		}),
		interfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fibre",
			Name:      "interfaces",
			Help:      "Cached interface types.",
		}),
		discoveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fibre",
			Name:      "discoveries",
			Help:      "Active discovery sessions.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.callsStarted, m.callsCompleted, m.callsInFlight,
		m.objects, m.interfaces, m.discoveries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) callStarted() {
	if m == nil {
		return
	}
	m.callsStarted.Inc()
	m.callsInFlight.Inc()
}

func (m *Metrics) callCompleted(status native.Status) {
	if m == nil {
		return
	}
	m.callsInFlight.Dec()
	m.callsCompleted.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) setObjects(n int) {
	if m != nil {
		m.objects.Set(float64(n))
	}
}

func (m *Metrics) setInterfaces(n int) {
	if m != nil {
		m.interfaces.Set(float64(n))
	}
}

func (m *Metrics) setDiscoveries(n int) {
	if m != nil {
		m.discoveries.Set(float64(n))
	}
}
