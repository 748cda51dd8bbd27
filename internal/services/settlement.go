package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sellerdesk/sellerdesk/config"
	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
	"github.com/sellerdesk/sellerdesk/internal/jobs"
	"github.com/sellerdesk/sellerdesk/internal/logger"
	"github.com/sellerdesk/sellerdesk/internal/settlement"
)

// Settlement handles settlement import operations. Uploads are staged and the
// heavy row materialization is delegated to a job, so the upload request
// returns as soon as parsing finishes.
type Settlement struct {
	imports    *repos.SettlementImportRepository
	rows       *repos.SettlementRowRepository
	jobService *Job
	engine     *settlement.Engine
	auditor    *settlement.Auditor
}

// NewSettlementService creates a new instance of the settlement service
func NewSettlementService(imports *repos.SettlementImportRepository, rows *repos.SettlementRowRepository, jobService *Job, engine *settlement.Engine, auditor *settlement.Auditor) *Settlement {
	return &Settlement{
		imports:    imports,
		rows:       rows,
		jobService: jobService,
		engine:     engine,
		auditor:    auditor,
	}
}

// StartImport parses an uploaded settlement report, stages the parsed rows on
// a new import record, and admits the job that will materialize them in
// chunks. Unparseable lines are collected, never fatal; an upload with zero
// parseable rows is rejected.
func (s *Settlement) StartImport(ctx context.Context, tenantID uint, fileName string, r io.Reader) (*models.SettlementImport, *models.Job, error) {
	result, err := settlement.Parse(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse settlement report: %w", err)
	}
	if len(result.Rows) == 0 {
		if perr := result.Err(); perr != nil {
			return nil, nil, fmt.Errorf("no parseable rows in %s: %w", fileName, perr)
		}
		return nil, nil, fmt.Errorf("no data rows in %s", fileName)
	}

	imp := &models.SettlementImport{
		TenantID:    tenantID,
		FileName:    fileName,
		Status:      models.ImportStatusQueued,
		MonthKey:    result.MonthKey,
		TotalRows:   len(result.Rows),
		ChunkSize:   config.GetEnvInt("SETTLEMENT_CHUNK_SIZE", settlement.DefaultChunkSize),
		StagedRows:  result.Rows,
		ParseErrors: result.Errors,
	}
	if err := s.imports.Create(ctx, imp); err != nil {
		return nil, nil, fmt.Errorf("create settlement import: %w", err)
	}

	params, err := json.Marshal(jobs.SettlementImportParams{ImportID: imp.ID})
	if err != nil {
		return nil, nil, err
	}
	job := &models.Job{
		TenantID: tenantID,
		Type:     models.JobTypeSettlementImport,
		Params:   params,
	}
	if err := s.jobService.Submit(ctx, job); err != nil {
		ferr := s.imports.Finalize(ctx, imp.ID, models.ImportStatusFailed,
			models.SettlementTotals{}, err.Error())
		if ferr != nil {
			logger.Errorf("failed to mark import %d failed after admission error: %v", imp.ID, ferr)
		}
		return nil, nil, err
	}

	logger.InfoWithFields("settlement import staged", map[string]interface{}{
		"import_id": imp.ID, "tenant_id": tenantID, "job_id": job.ID,
		"rows": imp.TotalRows, "parse_errors": len(imp.ParseErrors),
	})
	return imp, job, nil
}

// Get retrieves an import by ID, scoped to the tenant. Staged rows are not
// returned to callers; they are working data for the job.
func (s *Settlement) Get(ctx context.Context, tenantID, importID uint) (*models.SettlementImport, error) {
	return s.imports.GetByID(ctx, tenantID, importID)
}

// List retrieves imports for a tenant with pagination
func (s *Settlement) List(ctx context.Context, tenantID uint, opts *models.ListOptions) ([]models.SettlementImport, error) {
	return s.imports.ListByTenant(ctx, tenantID, opts)
}

// Rows retrieves the materialized rows of an import
func (s *Settlement) Rows(ctx context.Context, tenantID, importID uint) ([]models.SettlementRow, error) {
	if _, err := s.imports.GetByID(ctx, tenantID, importID); err != nil {
		return nil, err
	}
	return s.rows.ListActiveByImport(ctx, importID)
}

// Rebuild re-materializes missing rows for an import from its staged data
func (s *Settlement) Rebuild(ctx context.Context, tenantID, importID uint) (*settlement.RebuildResult, error) {
	return s.engine.Rebuild(ctx, tenantID, importID)
}

// RecomputeCOGS re-derives match state and COGS for one import or for all of
// the tenant's rows
func (s *Settlement) RecomputeCOGS(ctx context.Context, tenantID uint, importID *uint) (*settlement.RecomputeResult, error) {
	return s.engine.RecomputeCOGS(ctx, tenantID, importID)
}

// Audit runs a read-only integrity audit over one import or the whole tenant
func (s *Settlement) Audit(ctx context.Context, tenantID uint, importID *uint) (*settlement.Report, error) {
	return s.auditor.Audit(ctx, tenantID, importID)
}
