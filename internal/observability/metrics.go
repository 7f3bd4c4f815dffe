// Package observability exposes devicelink link activity as Prometheus
// metrics on a private registry.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devicelink"

// Label values.
const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics counts MQTT link traffic and tracks link state. It satisfies the
// mqttclient Observer interface.
//
// Each Metrics owns its own registry, so several instances can coexist in
// one process (tests, multiple links).
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Metrics struct {
	registry *prometheus.Registry

	received    *prometheus.CounterVec
	sent        prometheus.Counter
	sendErrors  prometheus.Counter
	acks        *prometheus.CounterVec
	linkState   prometheus.Gauge
	transitions *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry, together with the
// standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound MQTT messages, by whether a handler matched.",
		}, []string{"dispatched"}),
		sent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Publishes accepted by the MQTT engine.",
		}),
		sendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Publishes refused by the MQTT engine.",
		}),
		acks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_total",
			Help:      "Publish acknowledgements, by result.",
		}, []string{"result"}),
		linkState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_state",
			Help:      "1 while the broker connection is established, 0 otherwise.",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_transitions_total",
			Help:      "Link state transitions, by new state.",
		}, []string{"state"}),
	}

	// Pre-create label values so series exist before the first event.
	m.received.WithLabelValues("true")
	m.received.WithLabelValues("false")
	m.acks.WithLabelValues(resultOK)
	m.acks.WithLabelValues(resultError)

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MessageReceived counts an inbound message.
func (m *Metrics) MessageReceived(_ string, _ int, dispatched bool) {
	label := "false"
	if dispatched {
		label = "true"
	}
	m.received.WithLabelValues(label).Inc()
}

// MessageSent counts a publish request.
func (m *Metrics) MessageSent(_ string, _ int, err error) {
	if err != nil {
		m.sendErrors.Inc()
		return
	}
	m.sent.Inc()
}

// DeliveryAcknowledged counts a publish outcome.
func (m *Metrics) DeliveryAcknowledged(_ uint64, err error) {
	if err != nil {
		m.acks.WithLabelValues(resultError).Inc()
		return
	}
	m.acks.WithLabelValues(resultOK).Inc()
}

// StatusChanged updates the link gauge and counts the transition.
func (m *Metrics) StatusChanged(state string, _ error) {
	if state == "connected" {
		m.linkState.Set(1)
	} else {
		m.linkState.Set(0)
	}
	m.transitions.WithLabelValues(state).Inc()
}
