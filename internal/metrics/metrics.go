package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the monitoring loop counters
type Metrics struct {
	// Loop counters
	FramesRead   atomic.Uint64
	LocateErrors atomic.Uint64
	Movements    atomic.Uint64
	Triggers     atomic.Uint64
	Suppressed   atomic.Uint64

	// Evidence and alerts
	Records        atomic.Uint64
	AnalysisErrors atomic.Uint64
	AlertsSent     atomic.Uint64
	AlertsFailed   atomic.Uint64

	// Session state
	SessionsStarted atomic.Uint64
	Running         atomic.Uint64 // 0 = stopped, 1 = running

	registry *prometheus.Registry
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	FramesRead      uint64 `json:"frames_read"`
	LocateErrors    uint64 `json:"locate_errors"`
	Movements       uint64 `json:"movements"`
	Triggers        uint64 `json:"triggers"`
	Suppressed      uint64 `json:"suppressed"`
	Records         uint64 `json:"records"`
	AnalysisErrors  uint64 `json:"analysis_errors"`
	AlertsSent      uint64 `json:"alerts_sent"`
	AlertsFailed    uint64 `json:"alerts_failed"`
	SessionsStarted uint64 `json:"sessions_started"`
	Running         bool   `json:"running"`
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counters := []struct {
		name  string
		help  string
		value *atomic.Uint64
	}{
		{"threatsnap_frames_read_total", "Total frames read from the source", &m.FramesRead},
		{"threatsnap_locate_errors_total", "Total frames skipped because person detection failed", &m.LocateErrors},
		{"threatsnap_movements_total", "Total frames judged as movement", &m.Movements},
		{"threatsnap_triggers_total", "Total trigger events passed by the cooldown gate", &m.Triggers},
		{"threatsnap_triggers_suppressed_total", "Total movements dropped during cooldown", &m.Suppressed},
		{"threatsnap_records_total", "Total evidence records written", &m.Records},
		{"threatsnap_analysis_errors_total", "Total analysis requests that failed", &m.AnalysisErrors},
		{"threatsnap_alerts_sent_total", "Total alerts delivered", &m.AlertsSent},
		{"threatsnap_alerts_failed_total", "Total alerts that could not be delivered", &m.AlertsFailed},
		{"threatsnap_sessions_started_total", "Total monitoring sessions started", &m.SessionsStarted},
	}

	for _, c := range counters {
		value := c.value
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "threatsnap_session_running",
			Help: "Whether a monitoring session is running (0 = stopped, 1 = running)",
		},
		func() float64 { return float64(m.Running.Load()) },
	))
}

// SetRunning sets the running gauge
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.Running.Store(1)
		return
	}
	m.Running.Store(0)
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		FramesRead:      m.FramesRead.Load(),
		LocateErrors:    m.LocateErrors.Load(),
		Movements:       m.Movements.Load(),
		Triggers:        m.Triggers.Load(),
		Suppressed:      m.Suppressed.Load(),
		Records:         m.Records.Load(),
		AnalysisErrors:  m.AnalysisErrors.Load(),
		AlertsSent:      m.AlertsSent.Load(),
		AlertsFailed:    m.AlertsFailed.Load(),
		SessionsStarted: m.SessionsStarted.Load(),
		Running:         m.Running.Load() == 1,
	}
}

// Handler returns the Prometheus metrics handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
