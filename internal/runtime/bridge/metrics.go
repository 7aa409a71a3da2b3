package bridge

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Reasons a packet is dropped instead of relayed.
const (
	dropMalformed = "malformed"
	dropOversize  = "oversize"
)

// Metrics counts relay traffic per pipe.
type Metrics struct {
	mu sync.Mutex

	relayedTotal *prometheus.CounterVec
	failedTotal  *prometheus.CounterVec
	droppedTotal *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// NewMetrics creates the relay collectors. They are not registered until
// Register is called.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "protogate",
			Subsystem: "bridge",
			Name:      name,
			Help:      help,
		}, labels)
	}
	return &Metrics{
		registerer:   registerer,
		relayedTotal: counter("relayed_total", "Packets copied between the bus and a broker", "pipe", "direction"),
		failedTotal:  counter("failed_total", "Packets whose relay returned an error", "pipe", "direction"),
		droppedTotal: counter("dropped_total", "Packets skipped because they could not be relayed", "pipe", "reason"),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{m.relayedTotal, m.failedTotal, m.droppedTotal} {
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
