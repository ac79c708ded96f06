package dbconn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirror the teacher's use of prometheus/client_golang
// (internal/mux/hub.go, internal/cmd/server/handler.go) for operational
// visibility, adapted from an OTel-exporter bridge to direct
// promauto-registered collectors since this bridge has no OTel pipeline
// of its own to feed.
var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postgres_ssh_mcp_queries_total",
		Help: "Total executeQuery calls by outcome.",
	}, []string{"outcome"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postgres_ssh_mcp_query_duration_seconds",
		Help:    "executeQuery latency in seconds, from slot-acquire to result.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

func observeQuery(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
