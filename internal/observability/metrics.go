package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	toolDispatchTotal    *prometheus.CounterVec
	toolDispatchDuration *prometheus.HistogramVec

	realtimeMessagesTotal *prometheus.CounterVec
	realtimeSessions      prometheus.Gauge

	gatewayClients  prometheus.Gauge
	gatewayRequests *prometheus.CounterVec

	documentWritesTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolDispatchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_dispatch_total",
					Help: "Total tool dispatches by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolDispatchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_dispatch_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			realtimeMessagesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_messages_total",
					Help: "Realtime session messages by direction and type.",
				},
				[]string{"direction", "type"},
			),
			realtimeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "realtime_sessions_active",
					Help: "Current open realtime sessions.",
				},
			),
			gatewayClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "gateway_clients_active",
					Help: "Current connected gateway websocket clients.",
				},
			),
			gatewayRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gateway_requests_total",
					Help: "Gateway RPC requests by transport, method and status.",
				},
				[]string{"transport", "method", "status"},
			),
			documentWritesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "document_writes_total",
					Help: "Document store writes by operation and status.",
				},
				[]string{"op", "status"},
			),
		}

		prometheus.MustRegister(
			m.toolDispatchTotal,
			m.toolDispatchDuration,
			m.realtimeMessagesTotal,
			m.realtimeSessions,
			m.gatewayClients,
			m.gatewayRequests,
			m.documentWritesTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordToolDispatch counts one dispatch. Duration is skipped for calls that
// never reached the tool.
func RecordToolDispatch(tool, status string, duration time.Duration) {
	m := getMetrics()
	m.toolDispatchTotal.WithLabelValues(tool, status).Inc()
	if duration > 0 {
		m.toolDispatchDuration.WithLabelValues(tool).Observe(duration.Seconds())
	}
}

func RecordRealtimeMessage(direction, msgType string) {
	getMetrics().realtimeMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

func AddRealtimeSessions(delta int) {
	getMetrics().realtimeSessions.Add(float64(delta))
}

func SetGatewayClients(count int) {
	getMetrics().gatewayClients.Set(float64(count))
}

func RecordGatewayRequest(transport, method string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().gatewayRequests.WithLabelValues(transport, method, status).Inc()
}

func RecordDocumentWrite(op string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().documentWritesTotal.WithLabelValues(op, status).Inc()
}
