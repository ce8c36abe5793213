// Package metrics exposes the Prometheus collectors shared by the order,
// execution and position processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trading"

const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultApplied = "applied"
	ResultStale   = "stale"
	ResultDropped = "dropped"
)

var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events handed to the broker, by topic and result",
		},
		[]string{"topic", "result"},
	)

	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "outbox_pending",
			Help:      "Outbox rows still waiting for publication at the last relay pass",
		},
	)

	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Broker messages consumed, by topic and result",
		},
		[]string{"topic", "result"},
	)

	Recalculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "recalculations_total",
			Help:      "Position recalculations, by result",
		},
		[]string{"result"},
	)

	Executions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "executions_total",
			Help:      "Recorded executions, by resulting order status",
		},
		[]string{"order_status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
