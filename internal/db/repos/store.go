// Package repos handles database operations for the core entities. Every
// query is tenant-scoped; there is no ambient tenant state.
package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// store is the generic tenant-scoped repository base. Concrete repositories
// embed it and add typed finders.
type store[T any] struct {
	db *gorm.DB
}

// Create inserts a single record
func (s *store[T]) Create(ctx context.Context, record *T) error {
	return s.db.WithContext(ctx).Create(record).Error
}

// CreateBatch inserts records in batches of 100 within one transaction
func (s *store[T]) CreateBatch(ctx context.Context, records []*T) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(records, 100).Error
	})
}

// GetByID retrieves a record by primary key, scoped to the tenant
func (s *store[T]) GetByID(ctx context.Context, tenantID uint, id uint) (*T, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var record T
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByTenant retrieves records for a tenant with pagination
func (s *store[T]) ListByTenant(ctx context.Context, tenantID uint, opts *models.ListOptions) ([]T, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var records []T
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		query = query.Offset(opts.Offset)
	}
	err := query.Find(&records).Error
	return records, err
}

// Save persists all fields of an existing record
func (s *store[T]) Save(ctx context.Context, record *T) error {
	return s.db.WithContext(ctx).Save(record).Error
}

// Delete removes a record by primary key, scoped to the tenant
func (s *store[T]) Delete(ctx context.Context, tenantID uint, id uint) error {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return fmt.Errorf("invalid tenant_id: %w", err)
	}
	var record T
	return s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&record).Error
}
