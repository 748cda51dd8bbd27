package repos

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// SettlementImportRepository handles database operations for settlement imports
type SettlementImportRepository struct {
	store[models.SettlementImport]
}

// NewSettlementImportRepository creates a new instance of SettlementImportRepository
func NewSettlementImportRepository(db *gorm.DB) *SettlementImportRepository {
	return &SettlementImportRepository{store[models.SettlementImport]{db: db}}
}

// UpdateProgress persists the cursor and cumulative counters after one chunk
func (r *SettlementImportRepository) UpdateProgress(ctx context.Context, id uint, cursor, processed, matched, unmatched int) error {
	return r.db.WithContext(ctx).Model(&models.SettlementImport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"cursor":         cursor,
			"processed_rows": processed,
			"matched_rows":   matched,
			"unmatched_rows": unmatched,
			"status":         models.ImportStatusProcessing,
		}).Error
}

// Finalize stamps a terminal status with the cached totals. The totals are
// marshalled here; a map-based Updates bypasses the model's json serializer.
func (r *SettlementImportRepository) Finalize(ctx context.Context, id uint, status models.ImportStatus, totals models.SettlementTotals, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}
	raw, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("marshal cached totals: %w", err)
	}
	return r.db.WithContext(ctx).Model(&models.SettlementImport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":             status,
			"totals_cached_json": string(raw),
			"error":              errMsg,
		}).Error
}

// SettlementRowRepository handles database operations for settlement rows
type SettlementRowRepository struct {
	store[models.SettlementRow]
}

// NewSettlementRowRepository creates a new instance of SettlementRowRepository
func NewSettlementRowRepository(db *gorm.DB) *SettlementRowRepository {
	return &SettlementRowRepository{store[models.SettlementRow]{db: db}}
}

// ExistingRowIndexes returns the row indexes already materialized for an
// import in [from, to). Phase B checks this set before writing so that
// re-invocation at the same cursor never duplicates rows.
func (r *SettlementRowRepository) ExistingRowIndexes(ctx context.Context, importID uint, from, to int) (map[int]bool, error) {
	var indexes []int
	err := r.db.WithContext(ctx).Model(&models.SettlementRow{}).
		Where("import_id = ? AND row_index >= ? AND row_index < ?", importID, from, to).
		Pluck("row_index", &indexes).Error
	if err != nil {
		return nil, err
	}
	existing := make(map[int]bool, len(indexes))
	for _, idx := range indexes {
		existing[idx] = true
	}
	return existing, nil
}

// CountByImport counts materialized rows for an import, excluding soft-deleted ones
func (r *SettlementRowRepository) CountByImport(ctx context.Context, importID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SettlementRow{}).
		Where("import_id = ? AND is_deleted = ?", importID, false).
		Count(&count).Error
	return count, err
}

// ListActiveByImport returns all active (not soft-deleted) rows for an import
func (r *SettlementRowRepository) ListActiveByImport(ctx context.Context, importID uint) ([]models.SettlementRow, error) {
	var rows []models.SettlementRow
	err := r.db.WithContext(ctx).
		Where("import_id = ? AND is_deleted = ?", importID, false).
		Order("row_index ASC").
		Find(&rows).Error
	return rows, err
}

// ListActiveByTenant returns all active rows across a tenant's imports
func (r *SettlementRowRepository) ListActiveByTenant(ctx context.Context, tenantID uint) ([]models.SettlementRow, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var rows []models.SettlementRow
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false).
		Order("import_id ASC, row_index ASC").
		Find(&rows).Error
	return rows, err
}
