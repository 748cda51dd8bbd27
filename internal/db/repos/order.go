package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// OrderRepository handles database operations for orders and order lines
type OrderRepository struct {
	store[models.Order]
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{store[models.Order]{db: db}}
}

// ListActive returns all non-deleted orders for a tenant. The matching engine
// builds its normalized index from this set once per operation.
func (r *OrderRepository) ListActive(ctx context.Context, tenantID uint) ([]models.Order, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false).
		Find(&orders).Error
	return orders, err
}

// GetByAmazonID retrieves an order by its external marketplace identifier
func (r *OrderRepository) GetByAmazonID(ctx context.Context, tenantID uint, amazonOrderID string) (*models.Order, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND amazon_order_id = ?", tenantID, amazonOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListIDs returns the ids of all non-deleted orders for a tenant, oldest first.
// Bulk delete uses this as its cursor-ordered work list.
func (r *OrderRepository) ListIDs(ctx context.Context, tenantID uint) ([]uint, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// SoftDelete marks an order deleted without removing the record
func (r *OrderRepository) SoftDelete(ctx context.Context, tenantID, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("is_deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListLinesByOrders returns the order lines for the given order ids
func (r *OrderRepository) ListLinesByOrders(ctx context.Context, orderIDs []uint) ([]models.OrderLine, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("order_id IN ?", orderIDs).
		Find(&lines).Error
	return lines, err
}

// ListLinesByTenant returns all order lines for a tenant
func (r *OrderRepository) ListLinesByTenant(ctx context.Context, tenantID uint) ([]models.OrderLine, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Find(&lines).Error
	return lines, err
}

// CreateLine inserts an order line
func (r *OrderRepository) CreateLine(ctx context.Context, line *models.OrderLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

// DeleteLine removes an order line by primary key
func (r *OrderRepository) DeleteLine(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.OrderLine{}, id).Error
}

// SKURepository handles database operations for SKUs
type SKURepository struct {
	store[models.SKU]
}

// NewSKURepository creates a new instance of SKURepository
func NewSKURepository(db *gorm.DB) *SKURepository {
	return &SKURepository{store[models.SKU]{db: db}}
}

// ListByTenantAll returns every SKU for a tenant. The matcher indexes these
// by exact and normalized code.
func (r *SKURepository) ListByTenantAll(ctx context.Context, tenantID uint) ([]models.SKU, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var skus []models.SKU
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&skus).Error
	return skus, err
}

// GetByCode retrieves a SKU by its code within a tenant
func (r *SKURepository) GetByCode(ctx context.Context, tenantID uint, code string) (*models.SKU, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var sku models.SKU
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&sku).Error
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

// ListIDs returns the ids of all SKUs for a tenant, oldest first
func (r *SKURepository) ListIDs(ctx context.Context, tenantID uint) ([]uint, error) {
	if err := models.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant_id: %w", err)
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.SKU{}).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ResetStock zeroes the stock level of one SKU
func (r *SKURepository) ResetStock(ctx context.Context, tenantID, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.SKU{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("stock", 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
