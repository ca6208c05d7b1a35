package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

var (
	DraftCreations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_draft_creations_total",
			Help: "Draft creation requests by outcome (created, reused, failed)",
		},
		[]string{"outcome"},
	)

	PaymentSessionsTerminal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_payment_sessions_terminal_total",
			Help: "Payment sessions that reached a terminal state",
		},
		[]string{"status"},
	)

	PaymentPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_payment_polls_total",
			Help: "Payment status queries by result (applied, pending, error, stale, skipped)",
		},
		[]string{"result"},
	)

	PaymentSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_payment_sessions_active",
			Help: "Payment sessions currently processing",
		},
	)

	Finalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_finalizations_total",
			Help: "Finalization attempts by outcome (submitted, skipped, partial_failure, latch_unsealed)",
		},
		[]string{"outcome"},
	)

	DocumentUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_document_uploads_total",
			Help: "Document upload attempts by outcome (uploaded, skipped, failed)",
		},
		[]string{"outcome"},
	)
)
