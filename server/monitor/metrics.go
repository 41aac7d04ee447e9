package monitor

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/pkg/perfstats"
	"github.com/ppecam/ppecam/pkg/ppe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the pipeline counters, exported in Prometheus format.
type Metrics struct {
	FramesProcessed atomic.Uint64
	FramesFailed    atomic.Uint64
	PersonsSeen     atomic.Uint64
	ViolationFrames atomic.Uint64
	AlarmsRaised    atomic.Uint64
	AlarmActive     atomic.Uint64 // number of sessions with a raised alarm
	ActiveSessions  atomic.Uint64

	// Count of person-frames missing each gear item, indexed by canonical class
	MissingGear [4]atomic.Uint64

	nnLatencyLock sync.Mutex
	nnLatency     perfstats.TimeAccumulator

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	gauge := func(name, help string, value func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			value,
		))
	}
	gauge("ppe_frames_processed_total", "Total frames run through the pipeline",
		func() float64 { return float64(m.FramesProcessed.Load()) })
	gauge("ppe_frames_failed_total", "Total frames skipped due to detector failure",
		func() float64 { return float64(m.FramesFailed.Load()) })
	gauge("ppe_persons_seen_total", "Total person detections across all frames",
		func() float64 { return float64(m.PersonsSeen.Load()) })
	gauge("ppe_violation_frames_total", "Total frames with at least one person in violation",
		func() float64 { return float64(m.ViolationFrames.Load()) })
	gauge("ppe_alarms_raised_total", "Total alarm-on transitions",
		func() float64 { return float64(m.AlarmsRaised.Load()) })
	gauge("ppe_alarm_active", "Number of sessions with a raised alarm",
		func() float64 { return float64(m.AlarmActive.Load()) })
	gauge("ppe_active_sessions", "Number of open sessions",
		func() float64 { return float64(m.ActiveSessions.Load()) })
	gauge("ppe_nn_latency_ms", "Average object detection latency in milliseconds",
		func() float64 { return m.NNLatency().Seconds() * 1000 })
	gauge("ppe_nn_latency_max_ms", "Worst object detection latency in milliseconds",
		func() float64 { return m.NNLatencyMax().Seconds() * 1000 })

	for _, class := range ppe.GearTypes {
		idx := class
		gauge("ppe_missing_"+nn.PPEClasses[class]+"_total", "Person-frames missing "+nn.PPEClasses[class],
			func() float64 { return float64(m.MissingGear[idx].Load()) })
	}
}

func (m *Metrics) countFrame(records []ppe.PersonRecord, violation bool) {
	m.FramesProcessed.Add(1)
	m.PersonsSeen.Add(uint64(len(records)))
	if violation {
		m.ViolationFrames.Add(1)
	}
	for _, rec := range records {
		for _, class := range rec.Missing {
			if class >= 0 && class < len(m.MissingGear) {
				m.MissingGear[class].Add(1)
			}
		}
	}
}

func (m *Metrics) observeNNLatency(d time.Duration) {
	m.nnLatencyLock.Lock()
	m.nnLatency.AddSample(d)
	m.nnLatencyLock.Unlock()
}

// NNLatency returns the average detection latency since startup.
func (m *Metrics) NNLatency() time.Duration {
	m.nnLatencyLock.Lock()
	defer m.nnLatencyLock.Unlock()
	return m.nnLatency.Average()
}

// NNLatencyMax returns the worst detection latency since startup.
func (m *Metrics) NNLatencyMax() time.Duration {
	m.nnLatencyLock.Lock()
	defer m.nnLatencyLock.Unlock()
	return m.nnLatency.Max
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
