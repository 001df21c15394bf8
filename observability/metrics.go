package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics

	isoMetricsOnce sync.Once
	isoRegistry    *ISO8583Metrics
)

// RPCMetrics bundles the collectors for the JSON-RPC gateway surface.
type RPCMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// RPC returns the lazily-initialised metrics registry used to record gateway
// request activity.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pcidss",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pcidss",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and caller-facing code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pcidss",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC method handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
		)
	})
	return rpcRegistry
}

// Observe records one finished call. A zero code means success; any other
// value is the caller-facing JSON-RPC error code that was written.
func (m *RPCMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method = strings.TrimSpace(method); method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// ISO8583Metrics bundles the collectors for the message processor.
type ISO8583Metrics struct {
	messages *prometheus.CounterVec
}

// ISO8583 returns the metrics registry for processed card messages.
func ISO8583() *ISO8583Metrics {
	isoMetricsOnce.Do(func() {
		isoRegistry = &ISO8583Metrics{
			messages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pcidss",
				Subsystem: "iso8583",
				Name:      "messages_total",
				Help:      "Processed ISO8583 messages segmented by request MTI and response code.",
			}, []string{"mti", "response_code"}),
		}
		prometheus.MustRegister(isoRegistry.messages)
	})
	return isoRegistry
}

// RecordMessage counts one processed message. Empty labels collapse to
// "unknown" so malformed traffic still shows up on dashboards.
func (m *ISO8583Metrics) RecordMessage(mti, responseCode string) {
	if m == nil {
		return
	}
	if mti = strings.TrimSpace(mti); mti == "" {
		mti = "unknown"
	}
	if responseCode = strings.TrimSpace(responseCode); responseCode == "" {
		responseCode = "unknown"
	}
	m.messages.WithLabelValues(mti, responseCode).Inc()
}
