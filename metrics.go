package mqtt

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stat carries the client-side metrics. One Stat exists per Client; it
// is registered against the default registry with Register, the same
// way the upstream server exposes its counters.
type Stat struct {
	ActiveConnections prometheus.Gauge
	MessagesReceived  prometheus.Counter
	ByteReceived      prometheus.Counter
	ByteSent          prometheus.Counter
	Halts             *prometheus.CounterVec
}

func newStat() *Stat {
	return &Stat{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqtt_client_active_connections", Help: "Whether the client currently holds a live transport"}),
		MessagesReceived:  prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_received_messages", Help: "The total number of received application messages"}),
		ByteReceived:      prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_received_bytes", Help: "The total number of received MQTT bytes"}),
		ByteSent:          prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_send_bytes", Help: "The total number of sent MQTT bytes"}),
		Halts:             prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mqtt_client_halts", Help: "The total number of engine halts by kind"}, []string{"kind"}),
	}
}

func (s *Stat) Register() {
	prometheus.MustRegister(s.ActiveConnections)
	prometheus.MustRegister(s.MessagesReceived)
	prometheus.MustRegister(s.ByteReceived)
	prometheus.MustRegister(s.ByteSent)
	prometheus.MustRegister(s.Halts)
}
