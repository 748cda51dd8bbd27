package settlement

import (
	"context"
	"fmt"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
	"github.com/sellerdesk/sellerdesk/internal/logger"
)

// Engine runs the repair operations: re-materializing rows for an import and
// re-deriving match state and COGS across a tenant. Both are idempotent and
// safe to run repeatedly.
type Engine struct {
	imports *repos.SettlementImportRepository
	rows    *repos.SettlementRowRepository
	orders  *repos.OrderRepository
	skus    *repos.SKURepository
}

// NewEngine creates a repair engine
func NewEngine(imports *repos.SettlementImportRepository, rows *repos.SettlementRowRepository, orders *repos.OrderRepository, skus *repos.SKURepository) *Engine {
	return &Engine{imports: imports, rows: rows, orders: orders, skus: skus}
}

// RebuildResult reports what a rebuild pass did
type RebuildResult struct {
	ImportID    uint `json:"import_id"`
	RowsCreated int  `json:"rows_created"`
	RowsSkipped int  `json:"rows_skipped"`
}

// Rebuild re-materializes missing rows for an import from its staged data.
// Rows that already exist are left untouched, so a rebuild over a healthy
// import is a no-op.
func (e *Engine) Rebuild(ctx context.Context, tenantID, importID uint) (*RebuildResult, error) {
	imp, err := e.imports.GetByID(ctx, tenantID, importID)
	if err != nil {
		return nil, fmt.Errorf("settlement import %d: %w", importID, err)
	}
	if len(imp.StagedRows) == 0 {
		return nil, fmt.Errorf("settlement import %d has no staged rows to rebuild from", importID)
	}
	idx, err := loadIndexes(ctx, tenantID, e.orders, e.skus)
	if err != nil {
		return nil, err
	}
	existing, err := e.rows.ExistingRowIndexes(ctx, imp.ID, 0, imp.TotalRows)
	if err != nil {
		return nil, err
	}

	result := &RebuildResult{ImportID: imp.ID}
	var created []*models.SettlementRow
	for _, staged := range imp.StagedRows {
		if existing[staged.RowIndex] {
			result.RowsSkipped++
			continue
		}
		created = append(created, buildRow(imp, &staged, idx))
		result.RowsCreated++
	}
	if err := e.rows.CreateBatch(ctx, created); err != nil {
		return nil, fmt.Errorf("persist rebuilt rows: %w", err)
	}

	if result.RowsCreated > 0 {
		if err := e.refreshImport(ctx, imp, idx); err != nil {
			return nil, err
		}
	}
	logger.InfoWithFields("settlement rebuild finished", map[string]interface{}{
		"import_id": imp.ID, "tenant_id": tenantID,
		"created": result.RowsCreated, "skipped": result.RowsSkipped,
	})
	return result, nil
}

// RecomputeResult reports the COGS distribution after a recompute pass
type RecomputeResult struct {
	RowsProcessed   int            `json:"rows_processed"`
	RowsWithCOGS    int            `json:"rows_with_cogs"`
	RowsMissingCOGS int            `json:"rows_missing_cogs"`
	COGSBySource    map[string]int `json:"cogs_by_source"`
}

// RecomputeCOGS re-derives match state and COGS against the current catalog,
// for one import when importID is set or for every active row of the tenant.
// An order link that was established earlier is never cleared, even when the
// SKU no longer resolves.
func (e *Engine) RecomputeCOGS(ctx context.Context, tenantID uint, importID *uint) (*RecomputeResult, error) {
	idx, err := loadIndexes(ctx, tenantID, e.orders, e.skus)
	if err != nil {
		return nil, err
	}
	var rows []models.SettlementRow
	if importID != nil {
		if _, err := e.imports.GetByID(ctx, tenantID, *importID); err != nil {
			return nil, fmt.Errorf("settlement import %d: %w", *importID, err)
		}
		rows, err = e.rows.ListActiveByImport(ctx, *importID)
	} else {
		rows, err = e.rows.ListActiveByTenant(ctx, tenantID)
	}
	if err != nil {
		return nil, err
	}

	result := &RecomputeResult{COGSBySource: map[string]int{}}
	touched := map[uint]bool{}
	for i := range rows {
		row := &rows[i]
		applyMatch(row, idx)
		if err := e.rows.Save(ctx, row); err != nil {
			return nil, fmt.Errorf("save settlement row %d: %w", row.ID, err)
		}
		result.RowsProcessed++
		if row.COGSSource != "" && row.COGSSource != models.COGSSourceMissing {
			result.RowsWithCOGS++
		} else {
			result.RowsMissingCOGS++
		}
		if row.COGSSource != "" {
			result.COGSBySource[row.COGSSource]++
		}
		touched[row.ImportID] = true
	}

	for importID := range touched {
		imp, err := e.imports.GetByID(ctx, tenantID, importID)
		if err != nil {
			return nil, err
		}
		if err := e.refreshImport(ctx, imp, idx); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// refreshImport recomputes the cached totals and match counters for an import
// that is already terminal. Non-terminal imports are left for their own
// finalizer.
func (e *Engine) refreshImport(ctx context.Context, imp *models.SettlementImport, idx *Indexes) error {
	if !imp.Status.IsTerminal() {
		return nil
	}
	rows, err := e.rows.ListActiveByImport(ctx, imp.ID)
	if err != nil {
		return err
	}
	matched, unmatched := 0, 0
	for i := range rows {
		if rows[i].MatchStatus == models.MatchStatusMatched {
			matched++
		} else {
			unmatched++
		}
	}
	if err := e.imports.UpdateProgress(ctx, imp.ID, imp.Cursor, len(rows), matched, unmatched); err != nil {
		return err
	}
	totals := AggregateTotals(rows, idx)
	return e.imports.Finalize(ctx, imp.ID, imp.Status, totals, imp.Error)
}
