package repos

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// JobRepository handles database operations for jobs
type JobRepository struct {
	store[models.Job]
}

// NewJobRepository creates a new instance of JobRepository
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{store[models.Job]{db: db}}
}

// activeStatuses are the statuses that own a tenant's resource class.
var activeStatuses = []models.JobStatus{
	models.JobStatusRunning,
	models.JobStatusThrottled,
	models.JobStatusPausing,
	models.JobStatusResuming,
	models.JobStatusCancelling,
}

// List retrieves jobs for a tenant, optionally filtered by status
func (r *JobRepository) List(ctx context.Context, tenantID uint, status models.JobStatus, opts *models.ListOptions) ([]models.Job, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var jobs []models.Job
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		query = query.Offset(opts.Offset)
	}
	err := query.Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// CountActiveByResource counts non-terminal executing jobs holding the given
// resource class for a tenant. Queued jobs do not count: they wait in line.
func (r *JobRepository) CountActiveByResource(ctx context.Context, tenantID uint, resource string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("tenant_id = ? AND resource = ? AND status IN ?", tenantID, resource, activeStatuses).
		Count(&count).Error
	return count, err
}

// NextQueued returns the oldest highest-priority queued or resuming job whose
// tenant has no active job for the same resource class, or nil when none is
// eligible. Resuming jobs re-enter through the same scheduler path as fresh
// admissions.
func (r *JobRepository) NextQueued(ctx context.Context) (*models.Job, error) {
	var queued []models.Job
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.JobStatus{models.JobStatusQueued, models.JobStatusResuming}).
		Order("priority DESC, created_at ASC").
		Limit(models.DefaultLimit).
		Find(&queued).Error
	if err != nil {
		return nil, err
	}
	for i := range queued {
		// A resuming job holds its own resource class; it must not block itself.
		var active int64
		err := r.db.WithContext(ctx).Model(&models.Job{}).
			Where("tenant_id = ? AND resource = ? AND id <> ? AND status IN ?",
				queued[i].TenantID, queued[i].Resource, queued[i].ID, activeStatuses).
			Count(&active).Error
		if err != nil {
			return nil, err
		}
		if active == 0 {
			return &queued[i], nil
		}
	}
	return nil, nil
}

// ClaimQueued promotes a queued or resuming job to running. The guarded WHERE
// makes the claim safe against a concurrent sweep or control request; it
// reports whether this caller won the claim. A resumed job gets a fresh
// started_at so the runtime ceiling applies per invocation.
func (r *JobRepository) ClaimQueued(ctx context.Context, id uint) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", id,
			[]models.JobStatus{models.JobStatusQueued, models.JobStatusResuming}).
		Updates(map[string]interface{}{
			"status":            models.JobStatusRunning,
			"started_at":        now,
			"last_heartbeat_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

// UpdateStatus sets the status of a job
func (r *JobRepository) UpdateStatus(ctx context.Context, id uint, status models.JobStatus) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Update(models.JobStatusField, status).Error
}

// SaveCheckpoint persists the runner's counters, cursor, and checkpoint after
// a batch. The status column is only promoted back to running while it is
// still running or throttled, so a control intent written mid-batch survives
// the checkpoint and is observed at the next boundary.
func (r *JobRepository) SaveCheckpoint(ctx context.Context, job *models.Job) error {
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", job.ID).
		Select("total_count", "processed_count", "succeeded_count", "failed_count",
			"error_log", "checkpoint", models.JobCursorField, "progress_percent",
			"progress", "last_heartbeat_at").
		Updates(job).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", job.ID,
			[]models.JobStatus{models.JobStatusRunning, models.JobStatusThrottled}).
		Update(models.JobStatusField, models.JobStatusRunning).Error
}

// MarkThrottled widens a running job to throttled without overwriting a
// control intent that landed mid-batch.
func (r *JobRepository) MarkThrottled(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", id,
			[]models.JobStatus{models.JobStatusRunning, models.JobStatusThrottled}).
		Updates(map[string]interface{}{
			"status":            models.JobStatusThrottled,
			"last_heartbeat_at": time.Now(),
		}).Error
}

// RequestIntent flips a job to an intent status (pausing, resuming,
// cancelling) only when the current status permits the edge. It returns
// gorm.ErrRecordNotFound when nothing matched.
func (r *JobRepository) RequestIntent(ctx context.Context, tenantID, id uint, from []models.JobStatus, to models.JobStatus) error {
	updates := map[string]interface{}{"status": to}
	if to == models.JobStatusCancelling || to == models.JobStatusCancelled {
		updates["cancel_requested"] = time.Now()
	}
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListStuckCancelling returns jobs left in cancelling longer than the guard window
func (r *JobRepository) ListStuckCancelling(ctx context.Context, window time.Duration) ([]models.Job, error) {
	var jobs []models.Job
	cutoff := time.Now().Add(-window)
	err := r.db.WithContext(ctx).
		Where("status = ? AND cancel_requested < ?", models.JobStatusCancelling, cutoff).
		Find(&jobs).Error
	return jobs, err
}

// ListOverrunning returns running jobs whose wall-clock runtime exceeds the ceiling
func (r *JobRepository) ListOverrunning(ctx context.Context, ceiling time.Duration) ([]models.Job, error) {
	var jobs []models.Job
	cutoff := time.Now().Add(-ceiling)
	err := r.db.WithContext(ctx).
		Where("status IN ? AND started_at < ?",
			[]models.JobStatus{models.JobStatusRunning, models.JobStatusThrottled}, cutoff).
		Find(&jobs).Error
	return jobs, err
}

// FinalizeFrom stamps a terminal status only when the current status permits
// the edge, scoped to the tenant. Used by control endpoints for the
// queued-to-cancelled and cancelling-to-force_terminated edges, where losing
// the race to the runner must be observable. Returns gorm.ErrRecordNotFound
// when nothing matched.
func (r *JobRepository) FinalizeFrom(ctx context.Context, tenantID, id uint, from []models.JobStatus, status models.JobStatus, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now(),
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Finalize unconditionally stamps a terminal status. Used by the failsafe
// sweeps, which must win against an unresponsive runner.
func (r *JobRepository) Finalize(ctx context.Context, id uint, status models.JobStatus, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now(),
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}
