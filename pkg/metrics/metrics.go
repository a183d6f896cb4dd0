// Package metrics exposes receiver and dispatcher counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/herlein/gowmbus/pkg/wmbus"
)

const namespace = "wmbus"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics are the gateway counters. They implement receiver.Observer and
// dispatch.Observer.
type AppMetrics struct {
	FramesReceived  *prometheus.CounterVec // labels: mode
	FrameFailures   *prometheus.CounterVec // labels: reason
	FramesDropped   prometheus.Counter
	FrameRSSI       prometheus.Gauge
	Telegrams       *prometheus.CounterVec // labels: outcome
	PublishFailures *prometheus.CounterVec // labels: sink
}

// NewAppMetrics registers and returns the gateway counters
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames read completely from the radio.",
		}, []string{"mode"}),
		FrameFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_failures_total",
			Help:      "Abandoned frame acquisitions by reason.",
		}, []string{"reason"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because the frame queue was full.",
		}),
		FrameRSSI: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_rssi_dbm",
			Help:      "RSSI of the last received frame.",
		}),
		Telegrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegrams_total",
			Help:      "Dispatched telegrams by outcome.",
		}, []string{"outcome"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Field values a sink failed to publish.",
		}, []string{"sink"}),
	}
	reg.MustRegister(m.FramesReceived, m.FrameFailures, m.FramesDropped, m.FrameRSSI, m.Telegrams, m.PublishFailures)
	return m
}

// FrameReceived counts a completed frame
func (m *AppMetrics) FrameReceived(f wmbus.RawFrame) {
	m.FramesReceived.WithLabelValues(f.Tag()).Inc()
	m.FrameRSSI.Set(float64(f.RSSI))
}

// FrameFailed counts an abandoned acquisition
func (m *AppMetrics) FrameFailed(reason string) {
	m.FrameFailures.WithLabelValues(reason).Inc()
}

// FrameDropped counts a frame lost to a full queue
func (m *AppMetrics) FrameDropped() {
	m.FramesDropped.Inc()
}

// TelegramDispatched counts a dispatch outcome
func (m *AppMetrics) TelegramDispatched(outcome string) {
	m.Telegrams.WithLabelValues(outcome).Inc()
}

// PublishFailed counts a failed publish
func (m *AppMetrics) PublishFailed(sink string) {
	m.PublishFailures.WithLabelValues(sink).Inc()
}
