// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoansScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credbud_loans_scored_total",
			Help: "Total number of loan applications scored, by resulting status",
		},
		[]string{"status"},
	)

	LoanScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "credbud_loan_score",
			Help:    "Distribution of approval probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	PolicyFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credbud_policy_findings_total",
			Help: "Total number of policy findings, by rule and outcome",
		},
		[]string{"rule_id", "outcome"},
	)

	StatementsAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credbud_statements_analyzed_total",
			Help: "Total number of uploaded statements, by format and outcome",
		},
		[]string{"format", "outcome"},
	)

	BehaviorRatings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credbud_behavior_ratings_total",
			Help: "Total number of behaviour reports, by rating",
		},
		[]string{"rating"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credbud_http_requests_total",
			Help: "Total number of HTTP requests, by route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "credbud_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "route"},
	)

	WorkerJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credbud_worker_jobs_total",
			Help: "Total number of jobs handled by the worker, by topic and result",
		},
		[]string{"topic", "result"},
	)
)

// Outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)
