package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Capture counters
	FramesCaptured atomic.Uint64
	CaptureErrors  atomic.Uint64
	FramesDropped  atomic.Uint64

	// Inference counters
	Cycles         atomic.Uint64
	DetectorErrors atomic.Uint64
	Detections     atomic.Uint64

	// Reporting counters
	ReportsSent  atomic.Uint64
	ReportErrors atomic.Uint64

	// Web surface
	StreamClients atomic.Uint64
	PointerEvents atomic.Uint64

	// Latency tracking
	CycleLatencyMs atomic.Uint64 // Last inference cycle duration in ms

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Capture metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_frames_captured_total",
			Help: "Total frames captured from the video source",
		},
		func() float64 { return float64(m.FramesCaptured.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_capture_errors_total",
			Help: "Total frame capture errors",
		},
		func() float64 { return float64(m.CaptureErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_frames_dropped_total",
			Help: "Total frames dropped by slow consumers",
		},
		func() float64 { return float64(m.FramesDropped.Load()) },
	))

	// Inference metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_inference_cycles_total",
			Help: "Total completed inference cycles",
		},
		func() float64 { return float64(m.Cycles.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_detector_errors_total",
			Help: "Total detector invocation errors",
		},
		func() float64 { return float64(m.DetectorErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_detections_total",
			Help: "Total detections produced across all domains",
		},
		func() float64 { return float64(m.Detections.Load()) },
	))

	// Reporting metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_reports_sent_total",
			Help: "Total occupancy reports delivered to the server",
		},
		func() float64 { return float64(m.ReportsSent.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_report_errors_total",
			Help: "Total occupancy report delivery failures",
		},
		func() float64 { return float64(m.ReportErrors.Load()) },
	))

	// Web surface metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_stream_clients",
			Help: "Number of connected MJPEG stream clients",
		},
		func() float64 { return float64(m.StreamClients.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_pointer_events_total",
			Help: "Total pointer events received over the web socket",
		},
		func() float64 { return float64(m.PointerEvents.Load()) },
	))

	// Latency metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_cycle_latency_ms",
			Help: "Last inference cycle duration in milliseconds",
		},
		func() float64 { return float64(m.CycleLatencyMs.Load()) },
	))
}

// UpdateCycleLatency records the duration of the last inference cycle
func (m *Metrics) UpdateCycleLatency(duration time.Duration) {
	m.CycleLatencyMs.Store(uint64(duration.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
