package jobs

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
)

// stubProcessor is a scriptable processor for runner tests. onBatch runs
// before each batch is counted, which lets a test flip control statuses at
// the exact boundary the runner checks them.
type stubProcessor struct {
	total        int
	prepareErr   error
	throttleOnce bool
	onBatch      func(batch int)

	batches  int
	cleanups int
}

func (p *stubProcessor) Prepare(_ context.Context, _ *models.Job) (int, error) {
	if p.prepareErr != nil {
		return 0, p.prepareErr
	}
	return p.total, nil
}

func (p *stubProcessor) RunBatch(_ context.Context, job *models.Job, w BatchWindow) (BatchResult, error) {
	p.batches++
	if p.onBatch != nil {
		p.onBatch(p.batches)
	}
	if p.throttleOnce {
		p.throttleOnce = false
		return BatchResult{}, fmt.Errorf("flush stalled: %w", ErrRateLimited)
	}
	end := w.End()
	if end > job.TotalCount {
		end = job.TotalCount
	}
	n := end - w.Cursor
	return BatchResult{Processed: n, Succeeded: n, NextCursor: end}, nil
}

func (p *stubProcessor) Cleanup(_ context.Context, _ *models.Job) error {
	p.cleanups++
	return nil
}

// JobRunnerTestSuite exercises the runner and supervisor against an in-memory
// database with zero inter-batch delay.
type JobRunnerTestSuite struct {
	suite.Suite
	db       *gorm.DB
	ctx      context.Context
	repo     *repos.JobRepository
	registry *Registry
	runner   *Runner
}

func (s *JobRunnerTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_json=1"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err, "Failed to create in-memory database")
	require.NoError(s.T(), db.AutoMigrate(&models.Job{}), "Failed to run database migrations")

	s.db = db
	s.repo = repos.NewJobRepository(db)
	s.registry = NewRegistry()
	s.runner = NewRunner(s.repo, s.registry, RunnerConfig{
		BatchSize:      2,
		BatchDelay:     0,
		ThrottledDelay: 0,
		RuntimeCeiling: time.Minute,
	})
	s.ctx = context.Background()
}

func (s *JobRunnerTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

func (s *JobRunnerTestSuite) randomTenantID() uint {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	s.Require().NoError(err, "Failed to generate random tenant ID")
	return uint(n.Uint64() + 1)
}

func (s *JobRunnerTestSuite) createJob(tenantID uint, status models.JobStatus) *models.Job {
	job := &models.Job{
		TenantID: tenantID,
		Type:     models.JobTypeNotificationExport,
		Status:   status,
	}
	s.Require().NoError(s.repo.Create(s.ctx, job))
	return job
}

func (s *JobRunnerTestSuite) register(stub *stubProcessor) {
	s.registry.Register(models.JobTypeNotificationExport, func() Processor { return stub })
}

func (s *JobRunnerTestSuite) reload(job *models.Job) *models.Job {
	fresh, err := s.repo.GetByID(s.ctx, job.TenantID, job.ID)
	s.Require().NoError(err)
	return fresh
}

func (s *JobRunnerTestSuite) TestExecuteRunsToCompletion() {
	tenantID := s.randomTenantID()
	stub := &stubProcessor{total: 5}
	s.register(stub)
	job := s.createJob(tenantID, models.JobStatusRunning)

	s.Require().NoError(s.runner.Execute(s.ctx, job))

	got := s.reload(job)
	s.Equal(models.JobStatusCompleted, got.Status)
	s.Equal(5, got.TotalCount)
	s.Equal(5, got.ProcessedCount)
	s.Equal(5, got.Cursor)
	s.Equal(100, got.ProgressPercent)
	s.Equal("done", got.Progress.Phase)
	s.NotNil(got.CompletedAt)
	s.Equal(3, stub.batches)
	s.Equal(1, stub.cleanups)
}

func (s *JobRunnerTestSuite) TestCancelObservedAtBatchBoundary() {
	tenantID := s.randomTenantID()
	var job *models.Job
	stub := &stubProcessor{total: 6}
	stub.onBatch = func(batch int) {
		if batch == 2 {
			s.Require().NoError(s.repo.RequestIntent(s.ctx, tenantID, job.ID,
				[]models.JobStatus{models.JobStatusRunning}, models.JobStatusCancelling))
		}
	}
	s.register(stub)
	job = s.createJob(tenantID, models.JobStatusRunning)

	s.Require().NoError(s.runner.Execute(s.ctx, job))

	got := s.reload(job)
	s.Equal(models.JobStatusCancelled, got.Status)
	s.False(got.CanResume)
	s.NotNil(got.CompletedAt)
	// the second batch's work is persisted; the cancel lands at the next boundary
	s.Equal(4, got.ProcessedCount)
	s.LessOrEqual(got.ProcessedCount, got.TotalCount)
	s.Equal(2, stub.batches)
	s.Equal(0, stub.cleanups, "a cancelled job never reaches cleanup")
}

func (s *JobRunnerTestSuite) TestPauseThenResumeContinuesFromCheckpoint() {
	tenantID := s.randomTenantID()
	var job *models.Job
	stub := &stubProcessor{total: 6}
	stub.onBatch = func(batch int) {
		if batch == 1 {
			s.Require().NoError(s.repo.RequestIntent(s.ctx, tenantID, job.ID,
				[]models.JobStatus{models.JobStatusRunning}, models.JobStatusPausing))
		}
	}
	s.register(stub)
	job = s.createJob(tenantID, models.JobStatusRunning)

	s.Require().NoError(s.runner.Execute(s.ctx, job))

	paused := s.reload(job)
	s.Equal(models.JobStatusPaused, paused.Status)
	s.True(paused.CanResume)
	s.Equal("paused", paused.Progress.Phase)
	s.Equal(2, paused.Cursor)
	s.Nil(paused.CompletedAt)

	// resume re-enters through the scheduler: resuming, then a fresh execution
	s.Require().NoError(s.repo.RequestIntent(s.ctx, tenantID, job.ID,
		[]models.JobStatus{models.JobStatusPaused}, models.JobStatusResuming))
	resumedStub := &stubProcessor{total: 6}
	s.register(resumedStub)
	s.Require().NoError(s.runner.Execute(s.ctx, s.reload(job)))

	got := s.reload(job)
	s.Equal(models.JobStatusCompleted, got.Status)
	s.Equal(6, got.ProcessedCount)
	s.Equal(6, got.Cursor)
	s.Equal(2, resumedStub.batches, "resume picks up at the checkpoint, not at zero")
}

func (s *JobRunnerTestSuite) TestThrottledBatchRetriesAndCompletes() {
	tenantID := s.randomTenantID()
	stub := &stubProcessor{total: 4, throttleOnce: true}
	s.register(stub)
	job := s.createJob(tenantID, models.JobStatusRunning)

	s.Require().NoError(s.runner.Execute(s.ctx, job))

	got := s.reload(job)
	s.Equal(models.JobStatusCompleted, got.Status)
	s.Equal(4, got.ProcessedCount)
	s.Equal(3, stub.batches, "one throttled attempt plus two effective batches")
}

func (s *JobRunnerTestSuite) TestPrepareFailureMarksJobFailed() {
	tenantID := s.randomTenantID()
	stub := &stubProcessor{prepareErr: fmt.Errorf("source unavailable")}
	s.register(stub)
	job := s.createJob(tenantID, models.JobStatusRunning)

	err := s.runner.Execute(s.ctx, job)
	s.Require().Error(err)

	got := s.reload(job)
	s.Equal(models.JobStatusFailed, got.Status)
	s.Equal("source unavailable", got.Error)
	s.Require().NotEmpty(got.ErrorLog)
	s.Equal("prepare", got.ErrorLog[0].Phase)
}

func (s *JobRunnerTestSuite) TestExternallyFinalizedJobIsNotResurrected() {
	tenantID := s.randomTenantID()
	var job *models.Job
	stub := &stubProcessor{total: 6}
	stub.onBatch = func(batch int) {
		if batch == 2 {
			s.Require().NoError(s.repo.Finalize(s.ctx, job.ID,
				models.JobStatusForceTerminated, "cancel not observed within guard window"))
		}
	}
	s.register(stub)
	job = s.createJob(tenantID, models.JobStatusRunning)

	s.Require().NoError(s.runner.Execute(s.ctx, job))

	got := s.reload(job)
	s.Equal(models.JobStatusForceTerminated, got.Status)
	s.Equal(0, stub.cleanups)
}

func (s *JobRunnerTestSuite) TestResumingStatusIsPromotedToRunning() {
	tenantID := s.randomTenantID()
	stub := &stubProcessor{total: 2}
	s.register(stub)
	job := s.createJob(tenantID, models.JobStatusResuming)

	s.Require().NoError(s.runner.Execute(s.ctx, job))
	s.Equal(models.JobStatusCompleted, s.reload(job).Status)
}

func TestJobRunner(t *testing.T) {
	suite.Run(t, new(JobRunnerTestSuite))
}
