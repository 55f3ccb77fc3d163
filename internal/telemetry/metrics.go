// Package telemetry exposes Prometheus metrics for daemon calls and an
// on-demand daemon connectivity checker.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the control panel.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	pullBytes         *prometheus.CounterVec
	streamActive      prometheus.Gauge
	generateFragments *prometheus.CounterVec
	daemonUp          prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewMetrics returns the process-wide collector, registering it on first use.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ollama_dash_daemon_requests_total",
					Help: "Total number of daemon API calls",
				},
				[]string{"operation", "status"},
			),
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ollama_dash_daemon_request_duration_seconds",
					Help:    "Daemon API call duration in seconds",
					Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
				},
				[]string{"operation"},
			),
			pullBytes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ollama_dash_pull_bytes_total",
					Help: "Total bytes reported by completed pulls",
				},
				[]string{"model"},
			),
			streamActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "ollama_dash_stream_active",
					Help: "Number of daemon streams currently relayed to browsers",
				},
			),
			generateFragments: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ollama_dash_generate_fragments_total",
					Help: "Total text fragments received from generate and chat streams",
				},
				[]string{"model"},
			),
			daemonUp: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "ollama_dash_daemon_up",
					Help: "Result of the last connectivity check (1 = reachable, 0 = not)",
				},
			),
		}
	})
	return metricsInst
}

// ObserveCall records one completed daemon call.
func (m *Metrics) ObserveCall(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.requestsTotal.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// AddPullBytes counts bytes of a finished pull.
func (m *Metrics) AddPullBytes(model string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pullBytes.WithLabelValues(modelLabel(model)).Add(float64(n))
}

// AddFragments counts text fragments streamed for model.
func (m *Metrics) AddFragments(model string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.generateFragments.WithLabelValues(modelLabel(model)).Add(float64(n))
}

// StreamStarted and StreamFinished bracket a relayed stream.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.streamActive.Inc()
}

func (m *Metrics) StreamFinished() {
	if m == nil {
		return
	}
	m.streamActive.Dec()
}

// SetDaemonUp updates the connectivity gauge.
func (m *Metrics) SetDaemonUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.daemonUp.Set(1)
	} else {
		m.daemonUp.Set(0)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func modelLabel(model string) string {
	if model == "" {
		return "unknown"
	}
	return model
}
