package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sellerdesk/sellerdesk/config"
	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
	"github.com/sellerdesk/sellerdesk/internal/logger"
	"github.com/sellerdesk/sellerdesk/internal/metrics"
)

// ErrJobConflict is returned when a tenant already has an active or queued
// job for the same cooperative resource class.
var ErrJobConflict = errors.New("a conflicting job is already active for this tenant")

// SupervisorConfig holds the admission and failsafe policy
type SupervisorConfig struct {
	// PollInterval is how often the scheduler loop looks for work
	PollInterval time.Duration
	// CancelGuardWindow bounds how long a job may sit in cancelling before
	// the sweep force-finalizes it
	CancelGuardWindow time.Duration
	// RuntimeCeiling bounds total running wall-clock before the sweep
	// intervenes even without an external cancel
	RuntimeCeiling time.Duration
}

// SupervisorConfigFromEnv builds the supervisor policy from the environment
func SupervisorConfigFromEnv() SupervisorConfig {
	return SupervisorConfig{
		PollInterval:      config.GetEnvDuration("JOB_POLL_INTERVAL", time.Second),
		CancelGuardWindow: config.GetEnvDuration("JOB_CANCEL_GUARD", 30*time.Second),
		RuntimeCeiling:    config.GetEnvDuration("JOB_RUNTIME_CEILING", 5*time.Minute),
	}
}

// Supervisor admits jobs, promotes queued successors, and runs the failsafe
// sweeps. Serialization of mutually exclusive operations happens through the
// queued status rather than in-memory locking.
type Supervisor struct {
	jobs   *repos.JobRepository
	runner *Runner
	cfg    SupervisorConfig
}

// NewSupervisor creates a new job supervisor
func NewSupervisor(jobRepo *repos.JobRepository, runner *Runner, cfg SupervisorConfig) *Supervisor {
	return &Supervisor{jobs: jobRepo, runner: runner, cfg: cfg}
}

// Admit validates and persists a new job in queued status. Admission is
// rejected when the tenant already has an active job holding the same
// resource class; queued successors are allowed and are promoted in order.
func (s *Supervisor) Admit(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.Resource == "" {
		job.Resource = job.Type.ResourceClass()
	}
	active, err := s.jobs.CountActiveByResource(ctx, job.TenantID, job.Resource)
	if err != nil {
		return fmt.Errorf("admission check failed: %w", err)
	}
	if active > 0 {
		return ErrJobConflict
	}
	job.Status = models.JobStatusQueued
	if err := s.jobs.Create(ctx, job); err != nil {
		return err
	}
	metrics.JobsAdmitted.WithLabelValues(string(job.Type)).Inc()
	return nil
}

// RunOnce performs one supervisor tick: both failsafe sweeps, then claims and
// executes at most one eligible queued job. Split out from Run for tests and
// for request-driven execution.
func (s *Supervisor) RunOnce(ctx context.Context) error {
	if err := s.SweepStuckCancelling(ctx); err != nil {
		return err
	}
	if err := s.SweepOverrunning(ctx); err != nil {
		return err
	}

	next, err := s.jobs.NextQueued(ctx)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	claimed, err := s.jobs.ClaimQueued(ctx, next.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	job, err := s.jobs.GetByID(ctx, next.TenantID, next.ID)
	if err != nil {
		return err
	}
	logger.InfoWithFields("job promoted", map[string]interface{}{
		"job_id": job.ID, "tenant_id": job.TenantID, "type": string(job.Type),
	})
	return s.runner.Execute(ctx, job)
}

// Run launches the scheduler loop until the context is cancelled
func (s *Supervisor) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	logger.Info("Job supervisor started")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Job supervisor received shutdown signal, stopping...")
			return
		case <-ticker.C:
		}
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("supervisor tick failed: %v", err)
		}
	}
}

// SweepStuckCancelling force-finalizes jobs stuck in cancelling longer than
// the guard window. The runner never resurrects them: Finalize wins.
func (s *Supervisor) SweepStuckCancelling(ctx context.Context) error {
	stuck, err := s.jobs.ListStuckCancelling(ctx, s.cfg.CancelGuardWindow)
	if err != nil {
		return err
	}
	for i := range stuck {
		job := &stuck[i]
		if err := s.jobs.Finalize(ctx, job.ID, models.JobStatusForceTerminated,
			"cancel not observed within guard window"); err != nil {
			return err
		}
		metrics.JobsFinished.WithLabelValues(string(job.Type), string(models.JobStatusForceTerminated)).Inc()
		logger.WarnWithFields("job force terminated", map[string]interface{}{
			"job_id": job.ID, "tenant_id": job.TenantID,
		})
	}
	return nil
}

// SweepOverrunning force-finalizes running jobs whose wall-clock exceeds the
// runtime ceiling, so execution limits are never silently violated.
func (s *Supervisor) SweepOverrunning(ctx context.Context) error {
	overdue, err := s.jobs.ListOverrunning(ctx, s.cfg.RuntimeCeiling)
	if err != nil {
		return err
	}
	for i := range overdue {
		job := &overdue[i]
		if err := s.jobs.Finalize(ctx, job.ID, models.JobStatusTimeoutCancelled,
			"runtime ceiling exceeded"); err != nil {
			return err
		}
		metrics.JobsFinished.WithLabelValues(string(job.Type), string(models.JobStatusTimeoutCancelled)).Inc()
		logger.WarnWithFields("job timed out", map[string]interface{}{
			"job_id": job.ID, "tenant_id": job.TenantID,
		})
	}
	return nil
}
