package settlement

import (
	"context"
	"fmt"

	"github.com/sellerdesk/sellerdesk/config"
	"github.com/sellerdesk/sellerdesk/internal/db"
	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
	"github.com/sellerdesk/sellerdesk/internal/jobs"
	"github.com/sellerdesk/sellerdesk/internal/logger"
	"github.com/sellerdesk/sellerdesk/internal/metrics"
	"github.com/sellerdesk/sellerdesk/internal/normalize"
)

// DefaultChunkSize is the phase B chunk size when none is configured
const DefaultChunkSize = 50

// IntegrityTolerance returns the acceptable fraction of missing rows before
// an import is force-failed. Policy choice, deliberately configurable.
func IntegrityTolerance() float64 {
	return config.GetEnvFloat("SETTLEMENT_INTEGRITY_TOLERANCE", 0.05)
}

// Pipeline is the phase B chunk processor. It implements jobs.Processor: the
// settlement import runs under the same lifecycle, cancellation, and batching
// discipline as every other bulk operation.
type Pipeline struct {
	imports *repos.SettlementImportRepository
	rows    *repos.SettlementRowRepository
	orders  *repos.OrderRepository
	skus    *repos.SKURepository

	// per-run state: indices are built once per execution, not per row
	importID uint
	idx      *Indexes
}

// NewPipelineFactory creates the processor factory for settlement import jobs
func NewPipelineFactory(imports *repos.SettlementImportRepository, rows *repos.SettlementRowRepository, orders *repos.OrderRepository, skus *repos.SKURepository) jobs.Factory {
	return func() jobs.Processor {
		return &Pipeline{imports: imports, rows: rows, orders: orders, skus: skus}
	}
}

// Prepare binds the job to its import record and declares the row total
func (p *Pipeline) Prepare(ctx context.Context, job *models.Job) (int, error) {
	imp, err := p.loadImport(ctx, job)
	if err != nil {
		return 0, err
	}
	return imp.TotalRows, nil
}

func (p *Pipeline) loadImport(ctx context.Context, job *models.Job) (*models.SettlementImport, error) {
	if p.importID == 0 {
		var params jobs.SettlementImportParams
		if err := jobs.DecodeParams(job, &params); err != nil {
			return nil, err
		}
		if params.ImportID == 0 {
			return nil, fmt.Errorf("settlement import job requires import_id")
		}
		p.importID = params.ImportID
	}
	imp, err := p.imports.GetByID(ctx, job.TenantID, p.importID)
	if err != nil {
		return nil, fmt.Errorf("settlement import %d: %w", p.importID, err)
	}
	return imp, nil
}

func (p *Pipeline) ensureIndexes(ctx context.Context, tenantID uint) (*Indexes, error) {
	if p.idx != nil {
		return p.idx, nil
	}
	idx, err := loadIndexes(ctx, tenantID, p.orders, p.skus)
	if err != nil {
		return nil, err
	}
	p.idx = idx
	return idx, nil
}

// loadIndexes fetches a tenant's orders, SKUs, and order lines and builds the
// matcher indexes. Shared by the pipeline, the repair engine, and the auditor.
func loadIndexes(ctx context.Context, tenantID uint, orders *repos.OrderRepository, skus *repos.SKURepository) (*Indexes, error) {
	orderList, err := orders.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	skuList, err := skus.ListByTenantAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	lines, err := orders.ListLinesByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return BuildIndexes(orderList, skuList, lines), nil
}

// RunBatch materializes one chunk of staged rows. Rows whose
// (import_id, row_index) already exist are skipped, which makes re-invocation
// at the same cursor safe.
func (p *Pipeline) RunBatch(ctx context.Context, job *models.Job, w jobs.BatchWindow) (jobs.BatchResult, error) {
	imp, err := p.loadImport(ctx, job)
	if err != nil {
		return jobs.BatchResult{}, err
	}
	idx, err := p.ensureIndexes(ctx, job.TenantID)
	if err != nil {
		return jobs.BatchResult{}, err
	}

	end := w.End()
	if end > len(imp.StagedRows) {
		end = len(imp.StagedRows)
	}
	result := jobs.BatchResult{NextCursor: end}
	if w.Cursor >= end {
		return result, nil
	}

	existing, err := p.rows.ExistingRowIndexes(ctx, imp.ID, w.Cursor, end)
	if err != nil {
		return jobs.BatchResult{}, err
	}

	matched, unmatched := 0, 0
	var created []*models.SettlementRow
	for _, staged := range imp.StagedRows[w.Cursor:end] {
		result.Processed++
		if existing[staged.RowIndex] {
			result.Succeeded++
			continue
		}
		row := buildRow(imp, &staged, idx)
		if row.MatchStatus == models.MatchStatusMatched {
			matched++
		} else {
			unmatched++
		}
		metrics.SettlementRowsMatched.WithLabelValues(string(row.MatchStatus)).Inc()
		created = append(created, row)
		result.Succeeded++
	}
	if err := p.rows.CreateBatch(ctx, created); err != nil {
		if !db.IsDuplicateKeyError(err) {
			return jobs.BatchResult{}, fmt.Errorf("persist settlement rows: %w", err)
		}
		// A concurrent writer materialized this chunk between the index check
		// and the insert. The transaction rolled back whole; cleanup recounts
		// from the rows table.
	}

	// processed_rows is derived from the cursor, not accumulated, so a
	// replayed chunk cannot drive it past total_rows.
	if err := p.imports.UpdateProgress(ctx, imp.ID, end, end,
		imp.MatchedRows+matched, imp.UnmatchedRows+unmatched); err != nil {
		return jobs.BatchResult{}, err
	}
	return result, nil
}

// buildRow constructs one settlement row from its staged form, including the
// match verdict and COGS attribution.
func buildRow(imp *models.SettlementImport, staged *models.StagedRow, idx *Indexes) *models.SettlementRow {
	row := &models.SettlementRow{
		ImportID:          imp.ID,
		RowIndex:          staged.RowIndex,
		TenantID:          imp.TenantID,
		PostedAt:          staged.PostedAt,
		Type:              staged.Type,
		RawOrderID:        staged.OrderID,
		NormalizedOrderID: normalize.OrderID(staged.OrderID),
		SKU:               staged.SKU,
		Quantity:          staged.Quantity,
		Revenue:           staged.Revenue,
		Fees:              staged.Fees,
		Total:             staged.Total,
	}
	applyMatch(row, idx)
	return row
}

// applyMatch stamps the match verdict and COGS onto a row. The order pointer
// is never cleared once set, even when a later pass fails to resolve the SKU.
func applyMatch(row *models.SettlementRow, idx *Indexes) {
	verdict := Match(row.RawOrderID, row.SKU, idx)
	row.MatchStatus = verdict.Status
	row.MatchStrategy = verdict.Strategy
	row.NotFoundReason = verdict.NotFoundReason
	if verdict.MatchedOrderID != nil {
		row.MatchedOrderID = verdict.MatchedOrderID
	}
	row.MatchedSKUID = verdict.MatchedSKUID
	if row.MatchedOrderID != nil && verdict.MatchedOrderID == nil {
		// the order link predates this pass; keep it and degrade status only
		row.MatchStatus = models.MatchStatusUnmatchedSKU
		row.MatchStrategy = StrategyOrderOnly
		row.NotFoundReason = ReasonSKUNotFound
	}

	row.COGS = 0
	row.COGSSource = ""
	if row.MatchedOrderID != nil {
		cogs := ComputeCOGS(idx.OrderByID(*row.MatchedOrderID), idx)
		row.COGS = cogs.Amount
		row.COGSSource = cogs.Source
		if cogs.Source == models.COGSSourceMissing && row.NotFoundReason == "" {
			row.NotFoundReason = cogs.Reason
		}
	}
}

// Cleanup is the import finalizer: it verifies materialized row count against
// the declared total within tolerance, caches the aggregate totals, and
// stamps the terminal import status.
func (p *Pipeline) Cleanup(ctx context.Context, job *models.Job) error {
	imp, err := p.loadImport(ctx, job)
	if err != nil {
		return err
	}
	count, err := p.rows.CountByImport(ctx, imp.ID)
	if err != nil {
		return err
	}

	tolerance := IntegrityTolerance()
	if imp.TotalRows > 0 && float64(count) < float64(imp.TotalRows)*(1-tolerance) {
		msg := fmt.Sprintf("materialized %d of %d declared rows, beyond %.0f%% tolerance",
			count, imp.TotalRows, tolerance*100)
		if err := p.imports.Finalize(ctx, imp.ID, models.ImportStatusFailed, imp.TotalsCached, msg); err != nil {
			return err
		}
		return fmt.Errorf("settlement import %d integrity check failed: %s", imp.ID, msg)
	}

	idx, err := p.ensureIndexes(ctx, job.TenantID)
	if err != nil {
		return err
	}
	rows, err := p.rows.ListActiveByImport(ctx, imp.ID)
	if err != nil {
		return err
	}
	totals := AggregateTotals(rows, idx)

	// Match counters are recomputed from the materialized rows; the per-chunk
	// accumulation can undercount after a crash between row insert and
	// progress write.
	matched := 0
	for i := range rows {
		if rows[i].MatchStatus == models.MatchStatusMatched {
			matched++
		}
	}
	if err := p.imports.UpdateProgress(ctx, imp.ID, imp.Cursor, imp.Cursor,
		matched, len(rows)-matched); err != nil {
		return err
	}

	status := models.ImportStatusCompleted
	if len(imp.ParseErrors) > 0 {
		status = models.ImportStatusCompletedWithErrors
	}
	logger.InfoWithFields("settlement import finalized", map[string]interface{}{
		"import_id": imp.ID, "tenant_id": imp.TenantID, "rows": count, "status": string(status),
	})
	return p.imports.Finalize(ctx, imp.ID, status, totals, "")
}
