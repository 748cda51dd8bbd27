package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Field names for the job model
const (
	// JobStatusField is the field name for job status
	JobStatusField = "status"
	// JobCursorField is the field name for the batch cursor
	JobCursorField = "cursor"
)

// JobStatus represents the current state of a long-running job
type JobStatus string

// Job status constants
const (
	// JobStatusQueued indicates the job is admitted but not yet executing
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates the job is actively processing batches
	JobStatusRunning JobStatus = "running"
	// JobStatusThrottled indicates the job is running with a widened
	// inter-batch delay after a rate-limited write
	JobStatusThrottled JobStatus = "throttled"
	// JobStatusPausing indicates a pause was requested and the runner has
	// not yet reached a batch boundary
	JobStatusPausing JobStatus = "pausing"
	// JobStatusPaused indicates the runner exited cleanly with a resumable checkpoint
	JobStatusPaused JobStatus = "paused"
	// JobStatusResuming indicates a resume was requested on a paused job
	JobStatusResuming JobStatus = "resuming"
	// JobStatusCancelling indicates a cancel was requested and the runner has
	// not yet observed it
	JobStatusCancelling JobStatus = "cancelling"
	// JobStatusCancelled indicates the runner observed the cancel request and
	// stopped, persisting partial counts
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusForceTerminated indicates the failsafe sweep finalized a job
	// stuck in cancelling past the guard window
	JobStatusForceTerminated JobStatus = "force_terminated"
	// JobStatusTimeoutCancelled indicates the job exceeded the wall-clock
	// runtime ceiling and was stopped
	JobStatusTimeoutCancelled JobStatus = "timeout_cancelled"
	// JobStatusCompleted indicates the job finished successfully
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed outside per-item error isolation
	JobStatusFailed JobStatus = "failed"
)

// JobType identifies the kind of long-running operation a job performs
type JobType string

// Job type constants
const (
	JobTypeBulkDelete         JobType = "bulk_delete"
	JobTypeStockReset         JobType = "stock_reset"
	JobTypeSettlementImport   JobType = "settlement_import"
	JobTypeBackup             JobType = "backup"
	JobTypeRestore            JobType = "restore"
	JobTypeClone              JobType = "clone"
	JobTypeNotificationExport JobType = "notification_export"
)

// ResourceClass returns the cooperative resource a job type mutates. The
// supervisor admits at most one active job per tenant per resource class.
func (t JobType) ResourceClass() string {
	switch t {
	case JobTypeBulkDelete:
		return "orders"
	case JobTypeStockReset:
		return "stock"
	case JobTypeSettlementImport:
		return "settlement"
	case JobTypeBackup, JobTypeRestore, JobTypeClone:
		return "workspace"
	case JobTypeNotificationExport:
		return "notifications"
	default:
		return string(t)
	}
}

// JobProgress is the structured progress payload surfaced to callers
type JobProgress struct {
	Phase   string `json:"phase"`
	Message string `json:"message,omitempty"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// JobError is one entry in a job's ordered error log
type JobError struct {
	Phase     string `json:"phase"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// JobErrorLog is the ordered list of item-level errors recorded by the runner
type JobErrorLog []JobError

// Job represents one long-running, resumable, cancellable operation.
// Progress counters are written exclusively by the owning runner invocation;
// control endpoints only flip the intent statuses.
type Job struct {
	gorm.Model
	TenantID        uint            `json:"tenant_id" gorm:"not null;index"`
	Type            JobType         `json:"type" gorm:"not null;index"`
	Resource        string          `json:"resource" gorm:"not null;index"`
	Status          JobStatus       `json:"status" gorm:"not null;index"`
	Priority        int             `json:"priority" gorm:"not null;default:0"`
	Params          json.RawMessage `json:"params,omitempty" gorm:"type:jsonb"`
	TotalCount      int             `json:"total_count" gorm:"not null;default:0"`
	ProcessedCount  int             `json:"processed_count" gorm:"not null;default:0"`
	SucceededCount  int             `json:"succeeded_count" gorm:"not null;default:0"`
	FailedCount     int             `json:"failed_count" gorm:"not null;default:0"`
	ProgressPercent int             `json:"progress_percent" gorm:"not null;default:0"`
	Progress        JobProgress     `json:"progress" gorm:"serializer:json"`
	Checkpoint      json.RawMessage `json:"checkpoint,omitempty" gorm:"type:jsonb"`
	Cursor          int             `json:"cursor" gorm:"not null;default:0"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	LastHeartbeatAt *time.Time      `json:"last_heartbeat_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CancelRequested *time.Time      `json:"cancel_requested_at,omitempty"`
	CanResume       bool            `json:"can_resume" gorm:"not null;default:false"`
	Error           string          `json:"error,omitempty" gorm:"type:text"`
	ErrorLog        JobErrorLog     `json:"error_log,omitempty" gorm:"serializer:json"`
}

// String returns the string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}

// ParseJobStatus converts a string to a JobStatus
func ParseJobStatus(str string) (JobStatus, error) {
	switch JobStatus(str) {
	case JobStatusQueued, JobStatusRunning, JobStatusThrottled,
		JobStatusPausing, JobStatusPaused, JobStatusResuming,
		JobStatusCancelling, JobStatusCancelled, JobStatusForceTerminated,
		JobStatusTimeoutCancelled, JobStatusCompleted, JobStatusFailed:
		return JobStatus(str), nil
	default:
		return "", fmt.Errorf("invalid job status: %s", str)
	}
}

// ParseJobType converts a string to a JobType
func ParseJobType(str string) (JobType, error) {
	switch JobType(str) {
	case JobTypeBulkDelete, JobTypeStockReset, JobTypeSettlementImport,
		JobTypeBackup, JobTypeRestore, JobTypeClone, JobTypeNotificationExport:
		return JobType(str), nil
	default:
		return "", fmt.Errorf("invalid job type: %s", str)
	}
}

// IsTerminal reports whether the status permits no further transitions
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCancelled, JobStatusFailed,
		JobStatusForceTerminated, JobStatusTimeoutCancelled:
		return true
	}
	return false
}

// IsActive reports whether a job in this status owns its tenant's resource
// class for admission purposes. Queued jobs are not active: they wait.
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusRunning, JobStatusThrottled, JobStatusPausing,
		JobStatusResuming, JobStatusCancelling:
		return true
	}
	return false
}

// jobTransitions encodes the legal state machine edges.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusRunning, JobStatusCancelling, JobStatusCancelled, JobStatusFailed},
	JobStatusRunning:    {JobStatusThrottled, JobStatusPausing, JobStatusCancelling, JobStatusTimeoutCancelled, JobStatusCompleted, JobStatusFailed},
	JobStatusThrottled:  {JobStatusRunning, JobStatusPausing, JobStatusCancelling, JobStatusTimeoutCancelled, JobStatusCompleted, JobStatusFailed},
	JobStatusPausing:    {JobStatusPaused, JobStatusCancelling, JobStatusFailed},
	JobStatusPaused:     {JobStatusResuming, JobStatusCancelling, JobStatusCancelled},
	JobStatusResuming:   {JobStatusRunning, JobStatusCancelling, JobStatusFailed},
	JobStatusCancelling: {JobStatusCancelled, JobStatusForceTerminated},
}

// CanTransitionTo reports whether moving from the current status to next is a
// legal state machine edge. Terminal statuses admit no successor.
func (j *Job) CanTransitionTo(next JobStatus) bool {
	if j.Status.IsTerminal() {
		return false
	}
	for _, s := range jobTransitions[j.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// UpdateProgressPercent recomputes the cached percentage from the counters
func (j *Job) UpdateProgressPercent() {
	if j.TotalCount <= 0 {
		j.ProgressPercent = 0
		return
	}
	j.ProgressPercent = j.ProcessedCount * 100 / j.TotalCount
	if j.ProgressPercent > 100 {
		j.ProgressPercent = 100
	}
}

// Validate ensures that the job data is valid
func (j *Job) Validate() error {
	if err := ValidateTenantID(j.TenantID); err != nil {
		return err
	}
	if _, err := ParseJobType(string(j.Type)); err != nil {
		return err
	}
	if j.ProcessedCount > j.TotalCount && j.TotalCount > 0 {
		return fmt.Errorf("processed_count %d exceeds total_count %d", j.ProcessedCount, j.TotalCount)
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new job
func (j *Job) BeforeCreate(_ *gorm.DB) error {
	if j.Status == "" {
		j.Status = JobStatusQueued
	}
	if j.Resource == "" {
		j.Resource = j.Type.ResourceClass()
	}
	return j.Validate()
}
