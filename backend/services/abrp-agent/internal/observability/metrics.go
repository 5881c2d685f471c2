package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the agent's prometheus collectors. All methods are safe on a nil receiver so
// components can run without instrumentation.
type Metrics struct {
	ticks          prometheus.Counter
	sends          *prometheus.CounterVec
	skipped        prometheus.Counter
	failures       prometheus.Counter
	rejected       *prometheus.CounterVec
	samples        prometheus.Counter
	bufferLen      prometheus.Gauge
	running        prometheus.Gauge
	maxInterval    prometheus.Gauge
	requestLatency prometheus.Histogram
}

// NewMetrics registers collectors on reg; nil uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abrp_ticks_total",
			Help: "Low-rate evaluation ticks handled while sending is enabled.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abrp_sends_total",
			Help: "Telemetry transmissions started, by trigger.",
		}, []string{"trigger"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abrp_send_skipped_total",
			Help: "Ticks where the policy decided not to transmit.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abrp_send_failures_total",
			Help: "Transmissions that failed at the transport level.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abrp_send_rejected_total",
			Help: "Transmissions answered with a non-200 status.",
		}, []string{"status"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abrp_samples_total",
			Help: "High-rate power/speed samples accumulated.",
		}),
		bufferLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "abrp_sample_buffer_len",
			Help: "Samples currently held in the smoothing buffer.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "abrp_agent_running",
			Help: "1 while the agent is sending, 0 when stopped.",
		}),
		maxInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "abrp_max_interval_seconds",
			Help: "Maximum allowed interval chosen on the last tick.",
		}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "abrp_request_duration_seconds",
			Help:    "Duration of telemetry requests to the remote service.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.ticks, m.sends, m.skipped, m.failures, m.rejected,
		m.samples, m.bufferLen, m.running, m.maxInterval, m.requestLatency,
	)
	return m
}

func (m *Metrics) Tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) Sent(trigger string) {
	if m != nil {
		m.sends.WithLabelValues(trigger).Inc()
	}
}

func (m *Metrics) Skipped() {
	if m != nil {
		m.skipped.Inc()
	}
}

func (m *Metrics) Failed() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *Metrics) Rejected(status string) {
	if m != nil {
		m.rejected.WithLabelValues(status).Inc()
	}
}

// Sampled counts one accumulated sample and records the buffer length after it.
func (m *Metrics) Sampled(bufferLen int) {
	if m != nil {
		m.samples.Inc()
		m.bufferLen.Set(float64(bufferLen))
	}
}

func (m *Metrics) BufferLen(n int) {
	if m != nil {
		m.bufferLen.Set(float64(n))
	}
}

func (m *Metrics) Running(on bool) {
	if m == nil {
		return
	}
	if on {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}

func (m *Metrics) MaxInterval(d time.Duration) {
	if m != nil {
		m.maxInterval.Set(d.Seconds())
	}
}

func (m *Metrics) ObserveRequest(d time.Duration) {
	if m != nil {
		m.requestLatency.Observe(d.Seconds())
	}
}
