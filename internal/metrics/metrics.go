// Package metrics exposes prometheus instrumentation for the job engine and
// the settlement pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsAdmitted counts jobs accepted by the supervisor, by job type.
	JobsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerdesk_jobs_admitted_total",
		Help: "Number of jobs admitted, by job type.",
	}, []string{"type"})

	// JobsFinished counts jobs reaching a terminal status, by type and status.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerdesk_jobs_finished_total",
		Help: "Number of jobs reaching a terminal status, by type and status.",
	}, []string{"type", "status"})

	// BatchesProcessed counts runner batches, by job type.
	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerdesk_job_batches_total",
		Help: "Number of job batches processed, by job type.",
	}, []string{"type"})

	// ThrottleEvents counts rate-limit events observed by the runner.
	ThrottleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sellerdesk_job_throttle_events_total",
		Help: "Number of rate-limit events that widened the inter-batch delay.",
	})

	// RunningJobs tracks the number of jobs currently executing.
	RunningJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sellerdesk_jobs_running",
		Help: "Number of jobs currently executing.",
	})

	// SettlementRowsMatched counts settlement rows by match outcome.
	SettlementRowsMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerdesk_settlement_rows_total",
		Help: "Number of settlement rows processed, by match status.",
	}, []string{"status"})

	// AuditsRun counts integrity audits, by result.
	AuditsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerdesk_settlement_audits_total",
		Help: "Number of integrity audits run, by result.",
	}, []string{"result"})
)
