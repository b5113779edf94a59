package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// gatewayMetrics tracks Prometheus metrics for the gateway. All
// metrics use the "rdpgw_" prefix. Methods tolerate a nil receiver so
// a disabled metrics path costs nothing.
type gatewayMetrics struct {
	// ActiveSessions tracks currently connected sessions.
	ActiveSessions prometheus.Gauge

	// SessionOutcomes counts finished sessions by result.
	// Labels: result=[connected, negotiation_failed, credential_failed, transport_error]
	SessionOutcomes *prometheus.CounterVec

	// BytesPumped counts transport bytes by direction.
	// Labels: direction=[to_server, to_client]
	BytesPumped *prometheus.CounterVec

	// CodecWarnings counts non-fatal decode warnings surfaced by the
	// Active Stage.
	CodecWarnings prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *gatewayMetrics
)

// newGatewayMetrics creates and registers the gateway metrics exactly
// once; repeat calls return the same instance.
func newGatewayMetrics(reg prometheus.Registerer) *gatewayMetrics {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}

		m := &gatewayMetrics{
			ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rdpgw_active_sessions",
				Help: "Currently connected RDP sessions.",
			}),
			SessionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rdpgw_session_outcomes_total",
				Help: "Finished sessions by result.",
			}, []string{"result"}),
			BytesPumped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rdpgw_bytes_total",
				Help: "Transport bytes pumped by direction.",
			}, []string{"direction"}),
			CodecWarnings: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rdpgw_codec_warnings_total",
				Help: "Non-fatal decode warnings from the Active Stage.",
			}),
		}
		reg.MustRegister(m.ActiveSessions, m.SessionOutcomes, m.BytesPumped, m.CodecWarnings)
		metricsInstance = m
	})
	return metricsInstance
}

func (m *gatewayMetrics) sessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *gatewayMetrics) sessionEnded(result string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionOutcomes.WithLabelValues(result).Inc()
}

func (m *gatewayMetrics) pumped(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesPumped.WithLabelValues(direction).Add(float64(n))
}

func (m *gatewayMetrics) codecWarning() {
	if m == nil {
		return
	}
	m.CodecWarnings.Inc()
}
