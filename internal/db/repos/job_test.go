package repos

import (
	"time"

	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

func (s *DBRepositoryTestSuite) TestJobTenantScoping() {
	tenantA := s.randomTenantID()
	tenantB := tenantA + 1

	job := s.createTestJob(tenantA, models.JobTypeStockReset, models.JobStatusQueued)

	found, err := s.jobRepo.GetByID(s.ctx, tenantA, job.ID)
	s.Require().NoError(err)
	s.Equal(job.ID, found.ID)

	_, err = s.jobRepo.GetByID(s.ctx, tenantB, job.ID)
	s.Require().ErrorIs(err, gorm.ErrRecordNotFound)
}

func (s *DBRepositoryTestSuite) TestClaimQueuedGuard() {
	tenantID := s.randomTenantID()
	job := s.createTestJob(tenantID, models.JobTypeBulkDelete, models.JobStatusQueued)

	claimed, err := s.jobRepo.ClaimQueued(s.ctx, job.ID)
	s.Require().NoError(err)
	s.True(claimed)

	// Second claim loses: the job is already running.
	claimed, err = s.jobRepo.ClaimQueued(s.ctx, job.ID)
	s.Require().NoError(err)
	s.False(claimed)

	fresh, err := s.jobRepo.GetByID(s.ctx, tenantID, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusRunning, fresh.Status)
	s.NotNil(fresh.StartedAt)
	s.NotNil(fresh.LastHeartbeatAt)
}

func (s *DBRepositoryTestSuite) TestClaimResuming() {
	tenantID := s.randomTenantID()
	job := s.createTestJob(tenantID, models.JobTypeBulkDelete, models.JobStatusResuming)

	claimed, err := s.jobRepo.ClaimQueued(s.ctx, job.ID)
	s.Require().NoError(err)
	s.True(claimed)

	fresh, err := s.jobRepo.GetByID(s.ctx, tenantID, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusRunning, fresh.Status)
}

func (s *DBRepositoryTestSuite) TestNextQueuedPriorityAndOrder() {
	tenantID := s.randomTenantID()

	low := s.createTestJob(tenantID, models.JobTypeBulkDelete, models.JobStatusQueued)
	high := &models.Job{TenantID: tenantID + 1, Type: models.JobTypeStockReset, Priority: 5}
	s.Require().NoError(s.jobRepo.Create(s.ctx, high))

	next, err := s.jobRepo.NextQueued(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(next)
	s.Equal(high.ID, next.ID, "higher priority wins over older submission")

	claimed, err := s.jobRepo.ClaimQueued(s.ctx, high.ID)
	s.Require().NoError(err)
	s.True(claimed)

	next, err = s.jobRepo.NextQueued(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(next)
	s.Equal(low.ID, next.ID)
}

func (s *DBRepositoryTestSuite) TestNextQueuedSkipsHeldResource() {
	tenantID := s.randomTenantID()

	s.createTestJob(tenantID, models.JobTypeBulkDelete, models.JobStatusRunning)
	blocked := s.createTestJob(tenantID, models.JobTypeBulkDelete, models.JobStatusQueued)
	other := s.createTestJob(tenantID, models.JobTypeStockReset, models.JobStatusQueued)

	next, err := s.jobRepo.NextQueued(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(next)
	s.Equal(other.ID, next.ID, "queued successor waits while its resource class is held")
	s.NotEqual(blocked.ID, next.ID)
}

func (s *DBRepositoryTestSuite) TestNextQueuedResumingDoesNotBlockItself() {
	tenantID := s.randomTenantID()
	job := s.createTestJob(tenantID, models.JobTypeBulkDelete, models.JobStatusResuming)

	next, err := s.jobRepo.NextQueued(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(next)
	s.Equal(job.ID, next.ID)
}

func (s *DBRepositoryTestSuite) TestRequestIntentGuardsEdges() {
	tenantID := s.randomTenantID()
	job := s.createTestJob(tenantID, models.JobTypeStockReset, models.JobStatusRunning)

	err := s.jobRepo.RequestIntent(s.ctx, tenantID, job.ID,
		[]models.JobStatus{models.JobStatusRunning, models.JobStatusThrottled},
		models.JobStatusPausing)
	s.Require().NoError(err)

	fresh, err := s.jobRepo.GetByID(s.ctx, tenantID, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusPausing, fresh.Status)

	// The same edge from pausing is illegal.
	err = s.jobRepo.RequestIntent(s.ctx, tenantID, job.ID,
		[]models.JobStatus{models.JobStatusRunning, models.JobStatusThrottled},
		models.JobStatusPausing)
	s.Require().ErrorIs(err, gorm.ErrRecordNotFound)
}

func (s *DBRepositoryTestSuite) TestRequestIntentStampsCancelRequested() {
	tenantID := s.randomTenantID()
	job := s.createTestJob(tenantID, models.JobTypeStockReset, models.JobStatusRunning)

	err := s.jobRepo.RequestIntent(s.ctx, tenantID, job.ID,
		[]models.JobStatus{models.JobStatusRunning}, models.JobStatusCancelling)
	s.Require().NoError(err)

	fresh, err := s.jobRepo.GetByID(s.ctx, tenantID, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCancelling, fresh.Status)
	s.NotNil(fresh.CancelRequested)
}

func (s *DBRepositoryTestSuite) TestFinalizeFromGuard() {
	tenantID := s.randomTenantID()
	job := s.createTestJob(tenantID, models.JobTypeStockReset, models.JobStatusQueued)

	err := s.jobRepo.FinalizeFrom(s.ctx, tenantID, job.ID,
		[]models.JobStatus{models.JobStatusQueued}, models.JobStatusCancelled, "")
	s.Require().NoError(err)

	fresh, err := s.jobRepo.GetByID(s.ctx, tenantID, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCancelled, fresh.Status)
	s.NotNil(fresh.CompletedAt)

	// Terminal jobs admit no further finalize.
	err = s.jobRepo.FinalizeFrom(s.ctx, tenantID, job.ID,
		[]models.JobStatus{models.JobStatusQueued}, models.JobStatusCancelled, "")
	s.Require().ErrorIs(err, gorm.ErrRecordNotFound)
}

func (s *DBRepositoryTestSuite) TestFinalizeRejectsNonTerminal() {
	tenantID := s.randomTenantID()
	job := s.createTestJob(tenantID, models.JobTypeStockReset, models.JobStatusRunning)

	err := s.jobRepo.Finalize(s.ctx, job.ID, models.JobStatusPausing, "")
	s.Require().Error(err)
}

func (s *DBRepositoryTestSuite) TestListStuckCancelling() {
	tenantID := s.randomTenantID()
	job := s.createTestJob(tenantID, models.JobTypeBulkDelete, models.JobStatusCancelling)

	past := time.Now().Add(-time.Minute)
	err := s.db.Model(&models.Job{}).Where("id = ?", job.ID).
		Update("cancel_requested", past).Error
	s.Require().NoError(err)

	stuck, err := s.jobRepo.ListStuckCancelling(s.ctx, 30*time.Second)
	s.Require().NoError(err)
	s.Require().Len(stuck, 1)
	s.Equal(job.ID, stuck[0].ID)

	// Inside the guard window nothing is stuck.
	stuck, err = s.jobRepo.ListStuckCancelling(s.ctx, 5*time.Minute)
	s.Require().NoError(err)
	s.Empty(stuck)
}

func (s *DBRepositoryTestSuite) TestListOverrunning() {
	tenantID := s.randomTenantID()
	job := s.createTestJob(tenantID, models.JobTypeBulkDelete, models.JobStatusRunning)

	past := time.Now().Add(-time.Hour)
	err := s.db.Model(&models.Job{}).Where("id = ?", job.ID).
		Update("started_at", past).Error
	s.Require().NoError(err)

	overdue, err := s.jobRepo.ListOverrunning(s.ctx, 5*time.Minute)
	s.Require().NoError(err)
	s.Require().Len(overdue, 1)
	s.Equal(job.ID, overdue[0].ID)
}

func (s *DBRepositoryTestSuite) TestListFiltersByStatus() {
	tenantID := s.randomTenantID()
	s.createTestJob(tenantID, models.JobTypeBulkDelete, models.JobStatusQueued)
	running := s.createTestJob(tenantID, models.JobTypeStockReset, models.JobStatusRunning)

	list, err := s.jobRepo.List(s.ctx, tenantID, models.JobStatusRunning, nil)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(running.ID, list[0].ID)

	all, err := s.jobRepo.List(s.ctx, tenantID, "", nil)
	s.Require().NoError(err)
	s.Len(all, 2)
}
