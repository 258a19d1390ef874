package websocket

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	activeConnections   prometheus.GaugeFunc
	connectionsTotal    prometheus.Counter
	replacedConnections prometheus.Counter
	handshakeRejections *prometheus.CounterVec
	frameErrors         *prometheus.CounterVec
	frameLatency        *prometheus.HistogramVec
	deliveries          *prometheus.CounterVec
}

func newGatewayMetrics(reg prometheus.Registerer, registry *Registry) *gatewayMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &gatewayMetrics{
		activeConnections: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ridechat_connections_active",
			Help: "Current number of registered chat connections.",
		}, func() float64 {
			return float64(registry.Count())
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridechat_connections_total",
			Help: "Authenticated connections accepted since start.",
		}),
		replacedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridechat_connections_replaced_total",
			Help: "Connections closed because the same identity connected again.",
		}),
		handshakeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridechat_handshake_rejections_total",
			Help: "Rejected connection attempts grouped by reason.",
		}, []string{"reason"}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridechat_frame_errors_total",
			Help: "Error frames sent to clients grouped by code.",
		}, []string{"code"}),
		frameLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ridechat_frame_latency_seconds",
			Help:    "Latency for handling inbound frames.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridechat_deliveries_total",
			Help: "Outbound live deliveries grouped by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		m.activeConnections,
		m.connectionsTotal,
		m.replacedConnections,
		m.handshakeRejections,
		m.frameErrors,
		m.frameLatency,
		m.deliveries,
	)
	return m
}

func (m *gatewayMetrics) recordConnection(replaced bool) {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	if replaced {
		m.replacedConnections.Inc()
	}
}

func (m *gatewayMetrics) recordRejection(reason string) {
	if m == nil {
		return
	}
	m.handshakeRejections.WithLabelValues(reason).Inc()
}

func (m *gatewayMetrics) recordError(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.frameErrors.WithLabelValues(code).Inc()
}

func (m *gatewayMetrics) observeLatency(frameType FrameType, dur time.Duration) {
	if m == nil || frameType == "" {
		return
	}
	m.frameLatency.WithLabelValues(string(frameType)).Observe(dur.Seconds())
}

func (m *gatewayMetrics) recordDelivery(kind, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, outcome).Inc()
}
