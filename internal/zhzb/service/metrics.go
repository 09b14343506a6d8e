package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the market and wallet services. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	SettlementsTotal   *prometheus.CounterVec
	SettlementDuration *prometheus.HistogramVec
	RechargesTotal     *prometheus.CounterVec
	EventFailures      prometheus.Counter
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		SettlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhzb_settlements_total",
				Help: "Total market operations by outcome.",
			},
			[]string{"operation", "status"},
		),
		SettlementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zhzb_settlement_duration_seconds",
				Help:    "Market operation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RechargesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhzb_recharges_total",
				Help: "Total recharge outcomes.",
			},
			[]string{"status"},
		),
		EventFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "zhzb_event_publish_failures_total",
				Help: "Trade events that could not be published.",
			},
		),
	}

	registry.MustRegister(
		m.SettlementsTotal,
		m.SettlementDuration,
		m.RechargesTotal,
		m.EventFailures,
	)
	return m
}

func (m *Metrics) ObserveSettlement(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.SettlementsTotal.WithLabelValues(operation, outcome(err)).Inc()
	m.SettlementDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) IncRecharge(status string) {
	if m == nil {
		return
	}
	m.RechargesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncEventFailure() {
	if m == nil {
		return
	}
	m.EventFailures.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
