// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matchengine"

// Oracle call outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeMalformed   = "malformed"
	OutcomeRateLimited = "rate_limited"
	OutcomeQuota       = "quota"
	OutcomeUnavailable = "unavailable"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Matching runs by trigger and final status",
	}, []string{"trigger", "status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a matching run, oracle call included",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	hardFilterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hard_filter_failures_total",
		Help:      "Properties excluded by the hard filter, by first failing rule",
	}, []string{"rule"})

	oracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oracle_requests_total",
		Help:      "Ranking oracle calls by provider and outcome",
	}, []string{"provider", "outcome"})

	notificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_created_total",
		Help:      "Notifications inserted for strong matches",
	})
)

func ObserveRun(trigger, status string, took time.Duration) {
	runsTotal.WithLabelValues(trigger, status).Inc()
	runDuration.Observe(took.Seconds())
}

func ObserveHardFilter(failuresByRule map[string]int) {
	for rule, n := range failuresByRule {
		hardFilterFailures.WithLabelValues(rule).Add(float64(n))
	}
}

func ObserveOracle(provider, outcome string) {
	oracleRequests.WithLabelValues(provider, outcome).Inc()
}

func AddNotifications(n int) {
	if n > 0 {
		notificationsCreated.Add(float64(n))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
