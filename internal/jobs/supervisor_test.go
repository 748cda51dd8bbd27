package jobs

import (
	"time"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

func (s *JobRunnerTestSuite) newSupervisor() *Supervisor {
	return NewSupervisor(s.repo, s.runner, SupervisorConfig{
		PollInterval:      time.Second,
		CancelGuardWindow: 30 * time.Second,
		RuntimeCeiling:    time.Minute,
	})
}

func (s *JobRunnerTestSuite) TestAdmitRejectsConflictingResource() {
	tenantID := s.randomTenantID()
	sup := s.newSupervisor()
	s.createJob(tenantID, models.JobStatusRunning)

	err := sup.Admit(s.ctx, &models.Job{TenantID: tenantID, Type: models.JobTypeNotificationExport})
	s.Require().ErrorIs(err, ErrJobConflict)

	// a different resource class is unaffected
	s.Require().NoError(sup.Admit(s.ctx, &models.Job{TenantID: tenantID, Type: models.JobTypeStockReset}))

	// and so is another tenant
	s.Require().NoError(sup.Admit(s.ctx, &models.Job{TenantID: s.randomTenantID(), Type: models.JobTypeNotificationExport}))
}

func (s *JobRunnerTestSuite) TestAdmitAllowsQueuedSuccessor() {
	tenantID := s.randomTenantID()
	sup := s.newSupervisor()

	first := &models.Job{TenantID: tenantID, Type: models.JobTypeNotificationExport}
	s.Require().NoError(sup.Admit(s.ctx, first))
	s.Equal(models.JobStatusQueued, first.Status)

	// queued jobs hold no resource; successors line up behind them
	second := &models.Job{TenantID: tenantID, Type: models.JobTypeNotificationExport}
	s.Require().NoError(sup.Admit(s.ctx, second))
}

func (s *JobRunnerTestSuite) TestRunOnceClaimsAndExecutes() {
	tenantID := s.randomTenantID()
	stub := &stubProcessor{total: 3}
	s.register(stub)
	sup := s.newSupervisor()

	job := &models.Job{TenantID: tenantID, Type: models.JobTypeNotificationExport}
	s.Require().NoError(sup.Admit(s.ctx, job))
	s.Require().NoError(sup.RunOnce(s.ctx))

	got := s.reload(job)
	s.Equal(models.JobStatusCompleted, got.Status)
	s.Equal(3, got.ProcessedCount)
	s.NotNil(got.StartedAt)
	s.Equal(1, stub.cleanups)
}

func (s *JobRunnerTestSuite) TestRunOnceIdlesWithoutWork() {
	s.Require().NoError(s.newSupervisor().RunOnce(s.ctx))
}

func (s *JobRunnerTestSuite) TestSweepForceTerminatesStuckCancelling() {
	tenantID := s.randomTenantID()
	sup := s.newSupervisor()

	stuck := s.createJob(tenantID, models.JobStatusRunning)
	s.Require().NoError(s.repo.RequestIntent(s.ctx, tenantID, stuck.ID,
		[]models.JobStatus{models.JobStatusRunning}, models.JobStatusCancelling))
	past := time.Now().Add(-time.Minute)
	s.Require().NoError(s.db.Model(&models.Job{}).
		Where("id = ?", stuck.ID).Update("cancel_requested", past).Error)

	// a fresh cancel request stays untouched
	recent := s.createJob(tenantID, models.JobStatusThrottled)
	s.Require().NoError(s.repo.RequestIntent(s.ctx, tenantID, recent.ID,
		[]models.JobStatus{models.JobStatusThrottled}, models.JobStatusCancelling))

	s.Require().NoError(sup.SweepStuckCancelling(s.ctx))

	got := s.reload(stuck)
	s.Equal(models.JobStatusForceTerminated, got.Status)
	s.NotEmpty(got.Error)
	s.NotNil(got.CompletedAt)
	s.Equal(models.JobStatusCancelling, s.reload(recent).Status)
}

func (s *JobRunnerTestSuite) TestSweepTimesOutOverrunningJobs() {
	tenantID := s.randomTenantID()
	sup := s.newSupervisor()

	overdue := s.createJob(tenantID, models.JobStatusRunning)
	past := time.Now().Add(-2 * time.Minute)
	s.Require().NoError(s.db.Model(&models.Job{}).
		Where("id = ?", overdue.ID).Update("started_at", past).Error)

	fresh := s.createJob(tenantID, models.JobStatusRunning)
	now := time.Now()
	s.Require().NoError(s.db.Model(&models.Job{}).
		Where("id = ?", fresh.ID).Update("started_at", now).Error)

	s.Require().NoError(sup.SweepOverrunning(s.ctx))

	s.Equal(models.JobStatusTimeoutCancelled, s.reload(overdue).Status)
	s.Equal(models.JobStatusRunning, s.reload(fresh).Status)
}

func (s *JobRunnerTestSuite) TestCheckpointDoesNotClobberIntent() {
	tenantID := s.randomTenantID()
	job := s.createJob(tenantID, models.JobStatusRunning)
	s.Require().NoError(s.repo.RequestIntent(s.ctx, tenantID, job.ID,
		[]models.JobStatus{models.JobStatusRunning}, models.JobStatusCancelling))

	// a checkpoint computed from a pre-intent read of the job
	job.ProcessedCount = 4
	job.Cursor = 4
	s.Require().NoError(s.repo.SaveCheckpoint(s.ctx, job))

	got := s.reload(job)
	s.Equal(models.JobStatusCancelling, got.Status, "checkpoint must not overwrite a control intent")
	s.NotNil(got.CancelRequested)
	s.Equal(4, got.Cursor)
}
