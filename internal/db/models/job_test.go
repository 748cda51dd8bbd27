package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"queued to running", JobStatusQueued, JobStatusRunning, true},
		{"queued cancelled directly", JobStatusQueued, JobStatusCancelled, true},
		{"running to pausing", JobStatusRunning, JobStatusPausing, true},
		{"running to throttled", JobStatusRunning, JobStatusThrottled, true},
		{"throttled back to running", JobStatusThrottled, JobStatusRunning, true},
		{"pausing to paused", JobStatusPausing, JobStatusPaused, true},
		{"paused to resuming", JobStatusPaused, JobStatusResuming, true},
		{"paused cancelled directly", JobStatusPaused, JobStatusCancelled, true},
		{"resuming to running", JobStatusResuming, JobStatusRunning, true},
		{"cancelling to cancelled", JobStatusCancelling, JobStatusCancelled, true},
		{"cancelling to force terminated", JobStatusCancelling, JobStatusForceTerminated, true},
		{"running to completed", JobStatusRunning, JobStatusCompleted, true},
		{"running to timeout", JobStatusRunning, JobStatusTimeoutCancelled, true},

		{"queued cannot pause", JobStatusQueued, JobStatusPausing, false},
		{"paused cannot run directly", JobStatusPaused, JobStatusRunning, false},
		{"cancelling cannot complete", JobStatusCancelling, JobStatusCompleted, false},
		{"completed is terminal", JobStatusCompleted, JobStatusRunning, false},
		{"cancelled is terminal", JobStatusCancelled, JobStatusResuming, false},
		{"force terminated is terminal", JobStatusForceTerminated, JobStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Status: tt.from}
			assert.Equal(t, tt.allowed, job.CanTransitionTo(tt.to))
		})
	}
}

func TestJobStatusClassification(t *testing.T) {
	terminal := []JobStatus{
		JobStatusCompleted, JobStatusCancelled, JobStatusFailed,
		JobStatusForceTerminated, JobStatusTimeoutCancelled,
	}
	for _, status := range terminal {
		assert.True(t, status.IsTerminal(), "%s should be terminal", status)
		assert.False(t, status.IsActive(), "%s should not be active", status)
	}

	assert.False(t, JobStatusQueued.IsActive(), "queued jobs wait in line")
	assert.False(t, JobStatusPaused.IsActive(), "paused jobs release their resource")
	assert.True(t, JobStatusRunning.IsActive())
	assert.True(t, JobStatusCancelling.IsActive())
}

func TestParseJobStatus(t *testing.T) {
	status, err := ParseJobStatus("throttled")
	require.NoError(t, err)
	assert.Equal(t, JobStatusThrottled, status)

	_, err = ParseJobStatus("sleeping")
	assert.Error(t, err)
}

func TestResourceClass(t *testing.T) {
	assert.Equal(t, "orders", JobTypeBulkDelete.ResourceClass())
	assert.Equal(t, "stock", JobTypeStockReset.ResourceClass())
	assert.Equal(t, "settlement", JobTypeSettlementImport.ResourceClass())
	assert.Equal(t, "workspace", JobTypeBackup.ResourceClass())
	assert.Equal(t, "workspace", JobTypeRestore.ResourceClass())
	assert.Equal(t, "workspace", JobTypeClone.ResourceClass())
	assert.Equal(t, "notifications", JobTypeNotificationExport.ResourceClass())
}

func TestUpdateProgressPercent(t *testing.T) {
	job := &Job{TotalCount: 200, ProcessedCount: 50}
	job.UpdateProgressPercent()
	assert.Equal(t, 25, job.ProgressPercent)

	job.ProcessedCount = 500
	job.UpdateProgressPercent()
	assert.Equal(t, 100, job.ProgressPercent, "percentage is capped")

	job = &Job{}
	job.UpdateProgressPercent()
	assert.Equal(t, 0, job.ProgressPercent)
}

func TestJobValidate(t *testing.T) {
	job := &Job{TenantID: 1, Type: JobTypeStockReset}
	require.NoError(t, job.Validate())

	job = &Job{Type: JobTypeStockReset}
	assert.Error(t, job.Validate(), "tenant is required")

	job = &Job{TenantID: 1, Type: "mystery"}
	assert.Error(t, job.Validate())

	job = &Job{TenantID: 1, Type: JobTypeStockReset, TotalCount: 5, ProcessedCount: 9}
	assert.Error(t, job.Validate(), "processed cannot exceed total")
}
