package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
	"github.com/sellerdesk/sellerdesk/internal/logger"
)

// idListCheckpoint snapshots the work list at prepare time so retries and
// resumes operate on a stable, cursor-ordered set.
type idListCheckpoint struct {
	IDs []uint `json:"ids"`
}

func loadIDCheckpoint(job *models.Job) (idListCheckpoint, error) {
	var cp idListCheckpoint
	if len(job.Checkpoint) == 0 {
		return cp, nil
	}
	err := json.Unmarshal(job.Checkpoint, &cp)
	return cp, err
}

func (c idListCheckpoint) marshal() json.RawMessage {
	raw, _ := json.Marshal(c)
	return raw
}

// window returns the ids covered by a batch window, clamped to the list
func (c idListCheckpoint) window(w BatchWindow) []uint {
	if w.Cursor >= len(c.IDs) {
		return nil
	}
	end := w.End()
	if end > len(c.IDs) {
		end = len(c.IDs)
	}
	return c.IDs[w.Cursor:end]
}

// BulkDeleteProcessor soft-deletes a tenant's orders in cursor order, then
// removes dependent order lines in its cleanup phase.
type BulkDeleteProcessor struct {
	orders *repos.OrderRepository
}

// NewBulkDeleteProcessor creates a bulk delete processor factory
func NewBulkDeleteProcessor(orders *repos.OrderRepository) Factory {
	return func() Processor { return &BulkDeleteProcessor{orders: orders} }
}

// Prepare snapshots the ids to delete
func (p *BulkDeleteProcessor) Prepare(ctx context.Context, job *models.Job) (int, error) {
	var params BulkDeleteParams
	if err := DecodeParams(job, &params); err != nil {
		return 0, err
	}
	if params.Entity != "" && params.Entity != "orders" {
		return 0, fmt.Errorf("unsupported bulk delete entity %q", params.Entity)
	}
	ids, err := p.orders.ListIDs(ctx, job.TenantID)
	if err != nil {
		return 0, err
	}
	job.Checkpoint = idListCheckpoint{IDs: ids}.marshal()
	return len(ids), nil
}

// RunBatch soft-deletes one window of orders with per-item error isolation
func (p *BulkDeleteProcessor) RunBatch(ctx context.Context, job *models.Job, w BatchWindow) (BatchResult, error) {
	cp, err := loadIDCheckpoint(job)
	if err != nil {
		return BatchResult{}, fmt.Errorf("corrupt checkpoint: %w", err)
	}
	result := BatchResult{NextCursor: w.End()}
	if result.NextCursor > len(cp.IDs) {
		result.NextCursor = len(cp.IDs)
	}
	for _, id := range cp.window(w) {
		result.Processed++
		if err := p.orders.SoftDelete(ctx, job.TenantID, id); err != nil {
			result.Failed++
			result.ItemErrors = append(result.ItemErrors, models.JobError{
				Phase:     "delete",
				Message:   fmt.Sprintf("order %d: %v", id, err),
				Retryable: IsRateLimited(err),
			})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// Cleanup cascades: order lines of deleted orders are removed
func (p *BulkDeleteProcessor) Cleanup(ctx context.Context, job *models.Job) error {
	cp, err := loadIDCheckpoint(job)
	if err != nil {
		return err
	}
	lines, err := p.orders.ListLinesByOrders(ctx, cp.IDs)
	if err != nil {
		return err
	}
	logger.Debugf("bulk delete cleanup: removing %d order lines for tenant %d", len(lines), job.TenantID)
	for i := range lines {
		if err := p.orders.DeleteLine(ctx, lines[i].ID); err != nil {
			return fmt.Errorf("cascade delete line %d: %w", lines[i].ID, err)
		}
	}
	return nil
}

// StockResetProcessor zeroes stock levels across a tenant's SKUs
type StockResetProcessor struct {
	skus *repos.SKURepository
}

// NewStockResetProcessor creates a stock reset processor factory
func NewStockResetProcessor(skus *repos.SKURepository) Factory {
	return func() Processor { return &StockResetProcessor{skus: skus} }
}

// Prepare snapshots the SKU ids to reset
func (p *StockResetProcessor) Prepare(ctx context.Context, job *models.Job) (int, error) {
	var params StockResetParams
	if err := DecodeParams(job, &params); err != nil {
		return 0, err
	}
	ids, err := p.skus.ListIDs(ctx, job.TenantID)
	if err != nil {
		return 0, err
	}
	job.Checkpoint = idListCheckpoint{IDs: ids}.marshal()
	return len(ids), nil
}

// RunBatch resets one window of SKUs with per-item error isolation
func (p *StockResetProcessor) RunBatch(ctx context.Context, job *models.Job, w BatchWindow) (BatchResult, error) {
	cp, err := loadIDCheckpoint(job)
	if err != nil {
		return BatchResult{}, fmt.Errorf("corrupt checkpoint: %w", err)
	}
	result := BatchResult{NextCursor: w.End()}
	if result.NextCursor > len(cp.IDs) {
		result.NextCursor = len(cp.IDs)
	}
	for _, id := range cp.window(w) {
		result.Processed++
		if err := p.skus.ResetStock(ctx, job.TenantID, id); err != nil {
			result.Failed++
			result.ItemErrors = append(result.ItemErrors, models.JobError{
				Phase:     "reset",
				Message:   fmt.Sprintf("sku %d: %v", id, err),
				Retryable: IsRateLimited(err),
			})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// Cleanup is a no-op for stock resets
func (p *StockResetProcessor) Cleanup(_ context.Context, _ *models.Job) error {
	return nil
}

// Notifier delivers one notification. Message content and transport belong to
// the surrounding application; the core only drives the fan-out.
type Notifier interface {
	Notify(ctx context.Context, tenantID, userID uint, channel string) error
}

// LogNotifier is the default Notifier, logging instead of delivering
type LogNotifier struct{}

// Notify logs the would-be delivery
func (LogNotifier) Notify(_ context.Context, tenantID, userID uint, channel string) error {
	logger.InfoWithFields("notification dispatched", map[string]interface{}{
		"tenant_id": tenantID, "user_id": userID, "channel": channel,
	})
	return nil
}

// NotificationExportProcessor fans a notification out to every member of the
// tenant workspace.
type NotificationExportProcessor struct {
	memberships *repos.MembershipRepository
	notifier    Notifier
}

// NewNotificationExportProcessor creates a notification export processor factory
func NewNotificationExportProcessor(memberships *repos.MembershipRepository, notifier Notifier) Factory {
	return func() Processor {
		return &NotificationExportProcessor{memberships: memberships, notifier: notifier}
	}
}

// Prepare snapshots the recipient memberships
func (p *NotificationExportProcessor) Prepare(ctx context.Context, job *models.Job) (int, error) {
	var params NotificationExportParams
	if err := DecodeParams(job, &params); err != nil {
		return 0, err
	}
	members, err := p.memberships.ListByTenant(ctx, job.TenantID, nil)
	if err != nil {
		return 0, err
	}
	ids := make([]uint, len(members))
	for i := range members {
		ids[i] = members[i].UserID
	}
	job.Checkpoint = idListCheckpoint{IDs: ids}.marshal()
	return len(ids), nil
}

// RunBatch notifies one window of recipients with per-item error isolation
func (p *NotificationExportProcessor) RunBatch(ctx context.Context, job *models.Job, w BatchWindow) (BatchResult, error) {
	var params NotificationExportParams
	if err := DecodeParams(job, &params); err != nil {
		return BatchResult{}, err
	}
	cp, err := loadIDCheckpoint(job)
	if err != nil {
		return BatchResult{}, fmt.Errorf("corrupt checkpoint: %w", err)
	}
	result := BatchResult{NextCursor: w.End()}
	if result.NextCursor > len(cp.IDs) {
		result.NextCursor = len(cp.IDs)
	}
	for _, userID := range cp.window(w) {
		result.Processed++
		if err := p.notifier.Notify(ctx, job.TenantID, userID, params.Channel); err != nil {
			result.Failed++
			result.ItemErrors = append(result.ItemErrors, models.JobError{
				Phase:     "notify",
				Message:   fmt.Sprintf("user %d: %v", userID, err),
				Retryable: true,
			})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// Cleanup is a no-op for notification exports
func (p *NotificationExportProcessor) Cleanup(_ context.Context, _ *models.Job) error {
	return nil
}
