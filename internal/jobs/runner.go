package jobs

import (
	"context"
	"time"

	"github.com/sellerdesk/sellerdesk/config"
	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
	"github.com/sellerdesk/sellerdesk/internal/logger"
	"github.com/sellerdesk/sellerdesk/internal/metrics"
)

// RunnerConfig holds the batching and timing policy for job execution
type RunnerConfig struct {
	// BatchSize is the number of work items per batch. Batches are kept small
	// so cancellation latency stays bounded by one batch's duration.
	BatchSize int
	// BatchDelay is the base inter-batch delay
	BatchDelay time.Duration
	// ThrottledDelay replaces BatchDelay after a rate-limited batch
	ThrottledDelay time.Duration
	// RuntimeCeiling is the hard wall-clock limit per invocation
	RuntimeCeiling time.Duration
}

// RunnerConfigFromEnv builds the runner policy from the environment
func RunnerConfigFromEnv() RunnerConfig {
	return RunnerConfig{
		BatchSize:      config.GetEnvInt("JOB_BATCH_SIZE", 25),
		BatchDelay:     config.GetEnvDuration("JOB_BATCH_DELAY", 200*time.Millisecond),
		ThrottledDelay: config.GetEnvDuration("JOB_THROTTLED_DELAY", 2*time.Second),
		RuntimeCeiling: config.GetEnvDuration("JOB_RUNTIME_CEILING", 5*time.Minute),
	}
}

// Runner executes one job to completion or suspension. It is the only writer
// of progress counters and the only path that moves cancelling to cancelled
// or pausing to paused; control endpoints only flip intent statuses.
type Runner struct {
	jobs     *repos.JobRepository
	registry *Registry
	cfg      RunnerConfig
}

// NewRunner creates a new job runner
func NewRunner(jobRepo *repos.JobRepository, registry *Registry, cfg RunnerConfig) *Runner {
	return &Runner{jobs: jobRepo, registry: registry, cfg: cfg}
}

// Execute drives one job until it completes, suspends, or fails. The job must
// already be claimed (status running or resuming). Signals are consulted at
// every batch boundary, never mid-item.
func (r *Runner) Execute(ctx context.Context, job *models.Job) error {
	proc, err := r.registry.New(job.Type)
	if err != nil {
		return r.fail(ctx, job, "setup", err)
	}

	metrics.RunningJobs.Inc()
	defer metrics.RunningJobs.Dec()
	started := time.Now()

	if job.Status == models.JobStatusResuming {
		if err := r.jobs.UpdateStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
			return r.fail(ctx, job, "setup", err)
		}
		job.Status = models.JobStatusRunning
	}

	// First invocation resolves the total work item count.
	if job.TotalCount == 0 && job.Cursor == 0 {
		total, err := proc.Prepare(ctx, job)
		if err != nil {
			return r.fail(ctx, job, "prepare", err)
		}
		job.TotalCount = total
		job.Progress = models.JobProgress{Phase: "processing", Current: 0, Total: total}
		if err := r.jobs.SaveCheckpoint(ctx, job); err != nil {
			return r.fail(ctx, job, "prepare", err)
		}
	}

	delay := r.cfg.BatchDelay
	for {
		fresh, err := r.jobs.GetByID(ctx, job.TenantID, job.ID)
		if err != nil {
			return r.fail(ctx, job, "signal-check", err)
		}
		if fresh.Status.IsTerminal() {
			// A failsafe sweep finalized the job out from under us.
			return nil
		}
		switch fresh.Status {
		case models.JobStatusCancelling:
			return r.finalize(ctx, fresh, models.JobStatusCancelled, "")
		case models.JobStatusPausing:
			return r.suspend(ctx, fresh)
		}
		if time.Since(started) > r.cfg.RuntimeCeiling {
			return r.finalize(ctx, fresh, models.JobStatusTimeoutCancelled, "runtime ceiling exceeded")
		}
		if fresh.TotalCount > 0 && fresh.Cursor >= fresh.TotalCount {
			job = fresh
			break
		}
		if fresh.TotalCount == 0 {
			job = fresh
			break
		}

		result, err := proc.RunBatch(ctx, fresh, BatchWindow{Cursor: fresh.Cursor, Size: r.cfg.BatchSize})
		if err != nil {
			if IsRateLimited(err) {
				metrics.ThrottleEvents.Inc()
				delay = r.cfg.ThrottledDelay
				if err := r.jobs.MarkThrottled(ctx, fresh.ID); err != nil {
					return r.fail(ctx, fresh, "throttle", err)
				}
				job = fresh
				if err := sleepCtx(ctx, delay); err != nil {
					return err
				}
				continue
			}
			return r.fail(ctx, fresh, "batch", err)
		}

		fresh.ProcessedCount += result.Processed
		if fresh.ProcessedCount > fresh.TotalCount {
			fresh.ProcessedCount = fresh.TotalCount
		}
		fresh.SucceededCount += result.Succeeded
		fresh.FailedCount += result.Failed
		fresh.ErrorLog = append(fresh.ErrorLog, result.ItemErrors...)
		if result.Checkpoint != nil {
			fresh.Checkpoint = result.Checkpoint
		}
		fresh.Cursor = result.NextCursor
		fresh.UpdateProgressPercent()
		fresh.Progress.Phase = "processing"
		fresh.Progress.Current = fresh.ProcessedCount
		fresh.Progress.Total = fresh.TotalCount
		r.heartbeat(fresh)
		delay = r.cfg.BatchDelay

		// SaveCheckpoint never writes the status column over a control intent
		// that landed mid-batch; the next boundary check picks it up.
		if err := WithRetry(ctx, "persist checkpoint", func() error {
			return r.jobs.SaveCheckpoint(ctx, fresh)
		}); err != nil {
			return r.fail(ctx, fresh, "checkpoint", err)
		}
		metrics.BatchesProcessed.WithLabelValues(string(fresh.Type)).Inc()
		job = fresh

		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}

	// Cleanup runs under the same cancellation discipline as batches.
	fresh, err := r.jobs.GetByID(ctx, job.TenantID, job.ID)
	if err != nil {
		return r.fail(ctx, job, "cleanup", err)
	}
	if fresh.Status == models.JobStatusCancelling {
		return r.finalize(ctx, fresh, models.JobStatusCancelled, "")
	}
	if fresh.Status.IsTerminal() {
		return nil
	}
	fresh.Progress.Phase = "cleanup"
	if err := r.jobs.Save(ctx, fresh); err != nil {
		return r.fail(ctx, fresh, "cleanup", err)
	}
	if err := proc.Cleanup(ctx, fresh); err != nil {
		return r.fail(ctx, fresh, "cleanup", err)
	}
	fresh.Progress.Phase = "done"
	fresh.UpdateProgressPercent()
	return r.finalize(ctx, fresh, models.JobStatusCompleted, "")
}

func (r *Runner) heartbeat(job *models.Job) {
	now := time.Now()
	job.LastHeartbeatAt = &now
}

// suspend exits cleanly on a pause request, leaving a resumable checkpoint
func (r *Runner) suspend(ctx context.Context, job *models.Job) error {
	job.Status = models.JobStatusPaused
	job.CanResume = true
	job.Progress.Phase = "paused"
	if err := r.jobs.Save(ctx, job); err != nil {
		return err
	}
	logger.InfoWithFields("job paused", map[string]interface{}{
		"job_id": job.ID, "tenant_id": job.TenantID, "cursor": job.Cursor,
	})
	return nil
}

// finalize stamps a terminal status, persisting partial counters
func (r *Runner) finalize(ctx context.Context, job *models.Job, status models.JobStatus, errMsg string) error {
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	if errMsg != "" {
		job.Error = errMsg
	}
	if status == models.JobStatusCancelled {
		job.CanResume = false
		job.Progress.Phase = "cancelled"
	}
	if err := r.jobs.Save(ctx, job); err != nil {
		return err
	}
	metrics.JobsFinished.WithLabelValues(string(job.Type), string(status)).Inc()
	logger.InfoWithFields("job finished", map[string]interface{}{
		"job_id": job.ID, "tenant_id": job.TenantID, "status": string(status),
		"processed": job.ProcessedCount, "failed": job.FailedCount,
	})
	return nil
}

// fail marks a job failed after an error outside per-item isolation
func (r *Runner) fail(ctx context.Context, job *models.Job, phase string, cause error) error {
	job.ErrorLog = append(job.ErrorLog, models.JobError{
		Phase:   phase,
		Message: cause.Error(),
	})
	if err := r.finalize(ctx, job, models.JobStatusFailed, cause.Error()); err != nil {
		logger.Errorf("failed to persist job failure for job %d: %v", job.ID, err)
	}
	return cause
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
