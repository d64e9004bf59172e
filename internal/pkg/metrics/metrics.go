package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_cycles_total",
		Help: "Reconciliation cycles by result",
	}, []string{"result"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polylend_cycle_duration_seconds",
		Help:    "Wall time of a reconciliation cycle",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	OffersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_offers_submitted_total",
		Help: "Funding offers submitted to the exchange",
	}, []string{"result"})

	RiskDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_risk_decisions_total",
		Help: "Risk gate outcomes",
	}, []string{"action", "reason"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_settlements_total",
		Help: "Daily settlements by result",
	}, []string{"result"})

	ExchangeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_exchange_requests_total",
		Help: "Exchange API calls",
	}, []string{"endpoint", "result"})

	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polylend_notification_failures_total",
		Help: "Notifications that could not be delivered",
	}, []string{"sink"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polylend_http_latency_seconds",
		Help:    "Admin API latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
