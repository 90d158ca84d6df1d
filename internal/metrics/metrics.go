// Package metrics defines the Prometheus instrumentation for the three
// binaries. Each binary registers only its own set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics covers the HTTP entry service.
type GatewayMetrics struct {
	LoginTotal    *prometheus.CounterVec
	RegisterTotal *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	factory := promauto.With(reg)
	return &GatewayMetrics{
		LoginTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_login_total",
				Help: "Login attempts by outcome",
			},
			[]string{"result"}, // ok, bad_credentials, conflict, no_server, error
		),
		RegisterTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_register_total",
				Help: "Registration attempts by outcome",
			},
			[]string{"result"}, // ok, taken, error
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_duration_seconds",
				Help:    "HTTP handler latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}
}

// BackendMetrics covers the chat server: session population, frame traffic
// and message routing decisions.
type BackendMetrics struct {
	SessionsOnline  prometheus.Gauge
	FramesTotal     *prometheus.CounterVec
	MessagesRouted  *prometheus.CounterVec
	MailboxMessages prometheus.Counter
	LoadReported    prometheus.Gauge
}

func NewBackendMetrics(reg prometheus.Registerer) *BackendMetrics {
	factory := promauto.With(reg)
	return &BackendMetrics{
		SessionsOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "backend_sessions_online",
			Help: "Verified sessions currently connected",
		}),
		FramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_frames_total",
				Help: "Frames processed by tag and direction",
			},
			[]string{"tag", "direction"}, // direction: in, out
		),
		MessagesRouted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_messages_routed_total",
				Help: "Chat messages by routing decision",
			},
			[]string{"route"}, // local, remote, drop
		),
		MailboxMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "backend_mailbox_messages_total",
			Help: "Messages consumed from this server's mailbox stream",
		}),
		LoadReported: factory.NewGauge(prometheus.GaugeOpts{
			Name: "backend_load_reported",
			Help: "Connection count last reported to the status service",
		}),
	}
}

// StatusMetrics covers the central status service.
type StatusMetrics struct {
	ServersTracked prometheus.Gauge
	ServersEvicted prometheus.Counter
	MirrorPushes   *prometheus.CounterVec
}

func NewStatusMetrics(reg prometheus.Registerer) *StatusMetrics {
	factory := promauto.With(reg)
	return &StatusMetrics{
		ServersTracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "status_servers_tracked",
			Help: "Chat servers currently tracked by the balancer",
		}),
		ServersEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "status_servers_evicted_total",
			Help: "Chat servers evicted for missing heartbeats",
		}),
		MirrorPushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "status_mirror_pushes_total",
				Help: "server_list mirror pushes by outcome",
			},
			[]string{"result"}, // ok, error
		),
	}
}
