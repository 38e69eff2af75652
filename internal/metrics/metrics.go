package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/framelink/internal/framing"
)

const namespace = "framelink"

// clientStates lists every value ClientStateChanged may report.
var clientStates = []string{"disconnected", "resolving", "connecting", "connected"}

// Metrics records session events. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	messagesDecoded    *prometheus.CounterVec
	fragmentsDiscarded *prometheus.CounterVec
	bytesDiscarded     *prometheus.CounterVec
	connectionsOpen    *prometheus.GaugeVec
	connectionsTotal   *prometheus.CounterVec
	sessionRestarts    *prometheus.CounterVec
	healthy            *prometheus.GaugeVec
	clientState        *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "framing",
				Name:      "messages_decoded_total",
				Help:      "Complete messages produced by the decoder.",
			},
			[]string{"mode"},
		),
		fragmentsDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "framing",
				Name:      "fragments_discarded_total",
				Help:      "Pending fragments thrown away by the decoder.",
			},
			[]string{"reason"},
		),
		bytesDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "framing",
				Name:      "bytes_discarded_total",
				Help:      "Bytes thrown away by the decoder.",
			},
			[]string{"reason"},
		),
		connectionsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "open",
				Help:      "Currently open connections.",
			},
			[]string{"role"},
		),
		connectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "opened_total",
				Help:      "Connections opened since start.",
			},
			[]string{"role"},
		),
		sessionRestarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "restarts_total",
				Help:      "Sessions torn down and rebuilt after a failure.",
			},
			[]string{"role"},
		),
		healthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "healthy",
				Help:      "1 while the session event loop is running.",
			},
			[]string{"role"},
		),
		clientState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "state",
				Help:      "1 for the client's current connection state, 0 otherwise.",
			},
			[]string{"state"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.messagesDecoded,
			m.fragmentsDiscarded,
			m.bytesDiscarded,
			m.connectionsOpen,
			m.connectionsTotal,
			m.sessionRestarts,
			m.healthy,
			m.clientState,
		)
	}
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) MessagesDecoded(mode framing.Mode, n int) {
	if m == nil {
		return
	}
	m.messagesDecoded.WithLabelValues(mode.String()).Add(float64(n))
}

func (m *Metrics) FragmentDiscarded(reason framing.Reason, bytes int) {
	if m == nil {
		return
	}
	m.fragmentsDiscarded.WithLabelValues(string(reason)).Inc()
	m.bytesDiscarded.WithLabelValues(string(reason)).Add(float64(bytes))
}

func (m *Metrics) ConnectionOpened(role string) {
	if m == nil {
		return
	}
	m.connectionsOpen.WithLabelValues(role).Inc()
	m.connectionsTotal.WithLabelValues(role).Inc()
}

func (m *Metrics) ConnectionClosed(role string) {
	if m == nil {
		return
	}
	m.connectionsOpen.WithLabelValues(role).Dec()
}

func (m *Metrics) SessionRestarted(role string) {
	if m == nil {
		return
	}
	m.sessionRestarts.WithLabelValues(role).Inc()
}

func (m *Metrics) HealthChanged(role string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.healthy.WithLabelValues(role).Set(v)
}

func (m *Metrics) ClientStateChanged(state string) {
	if m == nil {
		return
	}
	for _, s := range clientStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.clientState.WithLabelValues(s).Set(v)
	}
}
