package runtime

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks gateway traffic.
type Metrics struct {
	mu sync.Mutex

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionsActive  *prometheus.GaugeVec
	sessionsTotal   *prometheus.CounterVec
	rejectedTotal   *prometheus.CounterVec
	framesTotal     *prometheus.CounterVec
	acksTotal       *prometheus.CounterVec
	cancelsTotal    prometheus.Counter

	registerer prometheus.Registerer
	registered bool
}

func newGatewayCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protogate",
			Subsystem: "gateway",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the gateway collectors. They are not registered until
// Register is called.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:    registerer,
		requestsTotal: newGatewayCounterVec("requests_total", "HTTP requests served, by route and status code", []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "protogate",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency of one-shot HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		sessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "protogate",
				Subsystem: "gateway",
				Name:      "sessions_active",
				Help:      "Open websocket sessions",
			},
			[]string{"route"},
		),
		sessionsTotal: newGatewayCounterVec("sessions_total", "Websocket sessions opened", []string{"route"}),
		rejectedTotal: newGatewayCounterVec("handshakes_rejected_total", "Websocket handshakes that failed validation", []string{"route"}),
		framesTotal:   newGatewayCounterVec("frames_sent_total", "Data frames written to websockets", []string{"route"}),
		acksTotal:     newGatewayCounterVec("acks_total", "Acknowledgements received from ON_ACK clients", []string{"route"}),
		cancelsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "protogate",
			Subsystem: "gateway",
			Name:      "prpc_cancels_total",
			Help:      "PRPC calls cancelled because their socket ended early",
		}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.sessionsActive,
		m.sessionsTotal,
		m.rejectedTotal,
		m.framesTotal,
		m.acksTotal,
		m.cancelsTotal,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) sessionOpened(route string) {
	m.sessionsTotal.WithLabelValues(route).Inc()
	m.sessionsActive.WithLabelValues(route).Inc()
}

func (m *Metrics) sessionClosed(route string) {
	m.sessionsActive.WithLabelValues(route).Dec()
}
