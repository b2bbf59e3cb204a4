package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the core's operational counters and gauges.
type Metrics struct {
	// Inbound stream events, labelled per event name.
	EventsReceived *prometheus.CounterVec

	// Events dropped because the payload was missing expected fields.
	MalformedPayloads prometheus.Counter

	// Reconnect loop activity.
	Reconnects        prometheus.Counter
	ReconnectFailures prometheus.Counter

	// Token refresh outcomes, labelled success/failure.
	TokenRefreshes *prometheus.CounterVec

	// Current connection state (0=disconnected 1=connecting 2=connected
	// 3=reconnect_wait).
	ConnectionState prometheus.Gauge

	// Current number of points held per sliding window.
	WindowSize *prometheus.GaugeVec
}

// New registers the metric set against reg. A nil registerer yields a
// detached local registry, which keeps instrumented code test-friendly.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EventsReceived: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "netpulse_events_received_total",
			Help: "Total number of inbound stream events by name.",
		}, []string{"event"}),

		MalformedPayloads: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "netpulse_malformed_payloads_total",
			Help: "Total number of inbound events dropped as malformed.",
		}),

		Reconnects: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "netpulse_reconnects_total",
			Help: "Total number of successful stream reconnections.",
		}),

		ReconnectFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "netpulse_reconnect_failures_total",
			Help: "Total number of exhausted reconnect cycles.",
		}),

		TokenRefreshes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "netpulse_token_refreshes_total",
			Help: "Total number of access token refresh attempts by result.",
		}, []string{"result"}),

		ConnectionState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "netpulse_connection_state",
			Help: "Current stream connection state.",
		}),

		WindowSize: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "netpulse_window_points",
			Help: "Current number of samples held per sliding window.",
		}, []string{"window"}),
	}
}
