// Package metrics exposes Prometheus instruments for the store's operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "finscope"

// Metrics groups the collectors updated by services, the worker and HTTP.
type Metrics struct {
	PointsIngested      prometheus.Counter
	PointsSkipped       prometheus.Counter
	TransactionsStored  prometheus.Counter
	TransactionsSkipped *prometheus.CounterVec
	SummaryRequests     *prometheus.CounterVec
	QueueMessages       *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PointsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeseries_points_ingested_total",
			Help:      "Timeseries points appended to the catalog.",
		}),
		PointsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeseries_points_skipped_total",
			Help:      "Timeseries points rejected for a missing metric or timestamp.",
		}),
		TransactionsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_stored_total",
			Help:      "Transactions inserted or replaced.",
		}),
		TransactionsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_skipped_total",
			Help:      "Transactions rejected by validation, by field.",
		}, []string{"field"}),
		SummaryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_requests_total",
			Help:      "Spend summary requests by cache result (hit, miss or off).",
		}, []string{"cache"}),
		QueueMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_total",
			Help:      "Ingestion queue messages by kind and outcome.",
		}, []string{"kind", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PointsIngested,
			m.PointsSkipped,
			m.TransactionsStored,
			m.TransactionsSkipped,
			m.SummaryRequests,
			m.QueueMessages,
			m.HTTPRequests,
			m.OperationDuration,
		)
	}
	return m
}

// ObserveSince records the time elapsed since start for operation.
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
