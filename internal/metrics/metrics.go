// ABOUTME: Prometheus collectors for the terminal session, protocol relay and RPC client
// ABOUTME: Registered on the default registry via promauto; exposed by the CLI with promhttp

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionEvents counts events published by terminal sessions, by kind.
	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucm_bridge_session_events_total",
		Help: "Events published by terminal sessions",
	}, []string{"kind"})

	// SessionOutputBytes counts bytes read from session pseudo-terminals.
	SessionOutputBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ucm_bridge_session_output_bytes_total",
		Help: "Bytes read from session pseudo-terminals",
	})

	// RelayConnections counts accepted relay client connections.
	RelayConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ucm_bridge_relay_connections_total",
		Help: "Relay client connections accepted",
	})

	// RelayActive tracks relay connections currently bridged.
	RelayActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ucm_bridge_relay_active_connections",
		Help: "Relay connections currently bridged",
	})

	// RelayBytes counts message body bytes forwarded, by direction
	// ("client_to_tool" or "tool_to_client").
	RelayBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucm_bridge_relay_bytes_total",
		Help: "Message body bytes forwarded by the relay",
	}, []string{"direction"})

	// RelayFramingErrors counts connections aborted by malformed framing.
	RelayFramingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ucm_bridge_relay_framing_errors_total",
		Help: "Relay connections aborted by framing errors",
	})

	// RPCCallDuration observes tools/call latency by tool and outcome
	// ("ok", "tool_error", "transport_error").
	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ucm_bridge_rpc_call_duration_seconds",
		Help:    "Duration of RPC tool calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"tool", "outcome"})
)

// Relay direction labels.
const (
	DirClientToTool = "client_to_tool"
	DirToolToClient = "tool_to_client"
)
