// Package services contains the business logic sitting between the HTTP
// handlers and the repositories.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
	"github.com/sellerdesk/sellerdesk/internal/jobs"
	"github.com/sellerdesk/sellerdesk/internal/logger"
	"github.com/sellerdesk/sellerdesk/internal/metrics"
)

// ErrInvalidTransition is returned when a control request names a job whose
// current status does not permit the requested edge.
var ErrInvalidTransition = errors.New("job status does not permit this transition")

// Job handles job-related operations: submission, listing, and the control
// plane. Control requests only flip intent statuses; the runner observes them
// at batch boundaries and performs the actual stop or suspension.
type Job struct {
	repo       *repos.JobRepository
	supervisor *jobs.Supervisor
}

// NewJobService creates a new instance of the job service
func NewJobService(repo *repos.JobRepository, supervisor *jobs.Supervisor) *Job {
	return &Job{repo: repo, supervisor: supervisor}
}

// Submit admits a new job in queued status. The scheduler loop picks it up
// once its tenant's resource class is free.
func (s *Job) Submit(ctx context.Context, job *models.Job) error {
	return s.supervisor.Admit(ctx, job)
}

// Get retrieves a job by ID, scoped to the tenant
func (s *Job) Get(ctx context.Context, tenantID, jobID uint) (*models.Job, error) {
	return s.repo.GetByID(ctx, tenantID, jobID)
}

// List retrieves jobs for a tenant, optionally filtered by status
func (s *Job) List(ctx context.Context, tenantID uint, statusFilter string, opts *models.ListOptions) ([]models.Job, error) {
	var status models.JobStatus
	if statusFilter != "" {
		parsed, err := models.ParseJobStatus(statusFilter)
		if err != nil {
			return nil, err
		}
		status = parsed
	}
	return s.repo.List(ctx, tenantID, status, opts)
}

// Pause requests suspension of a running or throttled job. The runner exits
// with a resumable checkpoint at the next batch boundary.
func (s *Job) Pause(ctx context.Context, tenantID, jobID uint) (*models.Job, error) {
	err := s.repo.RequestIntent(ctx, tenantID, jobID,
		[]models.JobStatus{models.JobStatusRunning, models.JobStatusThrottled},
		models.JobStatusPausing)
	if err != nil {
		return nil, s.transitionError(ctx, tenantID, jobID, "pause", err)
	}
	return s.Get(ctx, tenantID, jobID)
}

// Resume re-enters a paused job through the scheduler. The job is flipped to
// resuming and claimed by the next supervisor tick; execution continues from
// the persisted cursor.
func (s *Job) Resume(ctx context.Context, tenantID, jobID uint) (*models.Job, error) {
	err := s.repo.RequestIntent(ctx, tenantID, jobID,
		[]models.JobStatus{models.JobStatusPaused},
		models.JobStatusResuming)
	if err != nil {
		return nil, s.transitionError(ctx, tenantID, jobID, "resume", err)
	}
	return s.Get(ctx, tenantID, jobID)
}

// Cancel requests termination of a job. A queued or paused job that is not
// executing is cancelled immediately; an executing job is flipped to
// cancelling and stopped by the runner at the next batch boundary, with
// partial counts preserved.
func (s *Job) Cancel(ctx context.Context, tenantID, jobID uint) (*models.Job, error) {
	err := s.repo.FinalizeFrom(ctx, tenantID, jobID,
		[]models.JobStatus{models.JobStatusQueued, models.JobStatusPaused},
		models.JobStatusCancelled, "")
	if err == nil {
		job, err := s.Get(ctx, tenantID, jobID)
		if err != nil {
			return nil, err
		}
		metrics.JobsFinished.WithLabelValues(string(job.Type), string(models.JobStatusCancelled)).Inc()
		return job, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = s.repo.RequestIntent(ctx, tenantID, jobID,
		[]models.JobStatus{models.JobStatusRunning, models.JobStatusThrottled,
			models.JobStatusPausing, models.JobStatusResuming},
		models.JobStatusCancelling)
	if err != nil {
		return nil, s.transitionError(ctx, tenantID, jobID, "cancel", err)
	}
	return s.Get(ctx, tenantID, jobID)
}

// ForceStop finalizes a job stuck in cancelling without waiting for the guard
// window sweep. Only the cancelling-to-force_terminated edge is permitted.
func (s *Job) ForceStop(ctx context.Context, tenantID, jobID uint) (*models.Job, error) {
	err := s.repo.FinalizeFrom(ctx, tenantID, jobID,
		[]models.JobStatus{models.JobStatusCancelling},
		models.JobStatusForceTerminated, "force stopped by operator")
	if err != nil {
		return nil, s.transitionError(ctx, tenantID, jobID, "force-stop", err)
	}
	job, err := s.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	metrics.JobsFinished.WithLabelValues(string(job.Type), string(models.JobStatusForceTerminated)).Inc()
	logger.WarnWithFields("job force stopped", map[string]interface{}{
		"job_id": jobID, "tenant_id": tenantID,
	})
	return job, nil
}

// transitionError distinguishes a missing job from an illegal edge after a
// guarded update matched nothing.
func (s *Job) transitionError(ctx context.Context, tenantID, jobID uint, action string, cause error) error {
	if !errors.Is(cause, gorm.ErrRecordNotFound) {
		return cause
	}
	job, err := s.repo.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("cannot %s job %d in status %s: %w", action, jobID, job.Status, ErrInvalidTransition)
}
