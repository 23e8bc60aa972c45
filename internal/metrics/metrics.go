// Package metrics provides Prometheus instrumentation for the messaging
// client and the dev relay. Counters live in the default registry; the relay
// exposes them on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SendsTotal counts optimistic sends by outcome: "confirmed" or "failed".
	SendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ijara_client_sends_total",
		Help: "Outbound messages by final outcome",
	}, []string{"result"})

	// InboundMessagesTotal counts message:new events received by the client.
	InboundMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ijara_client_inbound_messages_total",
		Help: "Inbound message:new events",
	})

	// ConnectionStateChanges counts realtime connection state transitions.
	ConnectionStateChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ijara_client_connection_state_changes_total",
		Help: "Realtime channel state transitions by target state",
	}, []string{"state"})

	// RelayConnections tracks websocket sessions open on the dev relay.
	RelayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ijara_relay_connections",
		Help: "Current number of websocket sessions on the relay",
	})

	// RelayEventsTotal counts socket events handled by the relay, by event name.
	RelayEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ijara_relay_events_total",
		Help: "Socket events handled by the relay",
	}, []string{"event"})
)

func init() {
	prometheus.MustRegister(
		SendsTotal,
		InboundMessagesTotal,
		ConnectionStateChanges,
		RelayConnections,
		RelayEventsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
