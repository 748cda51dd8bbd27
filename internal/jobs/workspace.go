package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
)

// Entity kinds covered by workspace backup/restore/clone, in processing order.
// Order matters: order lines reference orders and SKUs, so they come last.
var workspaceKinds = []string{"skus", "orders", "order_lines"}

// workspaceArchive is the serialized snapshot a backup produces
type workspaceArchive struct {
	SKUs       []models.SKU       `json:"skus,omitempty"`
	Orders     []models.Order     `json:"orders,omitempty"`
	OrderLines []models.OrderLine `json:"order_lines,omitempty"`
}

// workspaceCheckpoint carries resumption state for workspace jobs: the kinds
// already finished, the source-to-target id map, and (for backups) the archive.
type workspaceCheckpoint struct {
	CompletedEntities []string                 `json:"completed_entities"`
	IDMap             map[string]map[uint]uint `json:"id_map,omitempty"`
	Archive           *workspaceArchive        `json:"archive,omitempty"`
}

func loadWorkspaceCheckpoint(job *models.Job) (workspaceCheckpoint, error) {
	cp := workspaceCheckpoint{IDMap: map[string]map[uint]uint{}}
	if len(job.Checkpoint) == 0 {
		return cp, nil
	}
	err := json.Unmarshal(job.Checkpoint, &cp)
	if cp.IDMap == nil {
		cp.IDMap = map[string]map[uint]uint{}
	}
	return cp, err
}

func (c workspaceCheckpoint) marshal() json.RawMessage {
	raw, _ := json.Marshal(c)
	return raw
}

func (c workspaceCheckpoint) done(kind string) bool {
	for _, k := range c.CompletedEntities {
		if k == kind {
			return true
		}
	}
	return false
}

// WorkspaceProcessor implements backup, restore, and clone. The cursor steps
// over entity kinds; each kind is finished and checkpointed atomically so a
// resumed job skips completed kinds via the completed_entities list.
type WorkspaceProcessor struct {
	mode    models.JobType
	orders  *repos.OrderRepository
	skus    *repos.SKURepository
	jobRepo *repos.JobRepository
}

// NewWorkspaceProcessor creates a factory for one of the workspace job types
func NewWorkspaceProcessor(mode models.JobType, orders *repos.OrderRepository, skus *repos.SKURepository, jobRepo *repos.JobRepository) Factory {
	return func() Processor {
		return &WorkspaceProcessor{mode: mode, orders: orders, skus: skus, jobRepo: jobRepo}
	}
}

// Prepare validates params and declares one work item per entity kind
func (p *WorkspaceProcessor) Prepare(_ context.Context, job *models.Job) (int, error) {
	var params WorkspaceParams
	if err := DecodeParams(job, &params); err != nil {
		return 0, err
	}
	switch p.mode {
	case models.JobTypeBackup:
	case models.JobTypeRestore:
		if params.BackupJobID == 0 {
			return 0, fmt.Errorf("restore requires backup_job_id")
		}
	case models.JobTypeClone:
		if params.TargetTenantID == 0 {
			return 0, fmt.Errorf("clone requires target_tenant_id")
		}
		if params.TargetTenantID == job.TenantID {
			return 0, fmt.Errorf("clone target must differ from source tenant")
		}
	default:
		return 0, fmt.Errorf("unsupported workspace job type %q", p.mode)
	}
	return len(workspaceKinds), nil
}

// RunBatch processes the entity kinds covered by the window
func (p *WorkspaceProcessor) RunBatch(ctx context.Context, job *models.Job, w BatchWindow) (BatchResult, error) {
	var params WorkspaceParams
	if err := DecodeParams(job, &params); err != nil {
		return BatchResult{}, err
	}
	cp, err := loadWorkspaceCheckpoint(job)
	if err != nil {
		return BatchResult{}, fmt.Errorf("corrupt checkpoint: %w", err)
	}

	result := BatchResult{NextCursor: w.End()}
	if result.NextCursor > len(workspaceKinds) {
		result.NextCursor = len(workspaceKinds)
	}
	for i := w.Cursor; i < result.NextCursor; i++ {
		kind := workspaceKinds[i]
		result.Processed++
		if cp.done(kind) {
			result.Succeeded++
			continue
		}
		switch p.mode {
		case models.JobTypeBackup:
			err = p.backupKind(ctx, job.TenantID, kind, &cp)
		case models.JobTypeRestore:
			err = p.applyArchiveKind(ctx, job, kind, &cp, job.TenantID, params.BackupJobID)
		case models.JobTypeClone:
			err = p.cloneKind(ctx, job.TenantID, params.TargetTenantID, kind, &cp)
		}
		if err != nil {
			result.Failed++
			result.ItemErrors = append(result.ItemErrors, models.JobError{
				Phase:     string(p.mode),
				Message:   fmt.Sprintf("%s: %v", kind, err),
				Retryable: IsRateLimited(err),
			})
			continue
		}
		cp.CompletedEntities = append(cp.CompletedEntities, kind)
		result.Succeeded++
	}
	result.Checkpoint = cp.marshal()
	return result, nil
}

// Cleanup is a no-op; the checkpoint holds the finished artifact/id map
func (p *WorkspaceProcessor) Cleanup(_ context.Context, _ *models.Job) error {
	return nil
}

func (p *WorkspaceProcessor) backupKind(ctx context.Context, tenantID uint, kind string, cp *workspaceCheckpoint) error {
	if cp.Archive == nil {
		cp.Archive = &workspaceArchive{}
	}
	switch kind {
	case "skus":
		skus, err := p.skus.ListByTenantAll(ctx, tenantID)
		if err != nil {
			return err
		}
		cp.Archive.SKUs = skus
	case "orders":
		orders, err := p.orders.ListActive(ctx, tenantID)
		if err != nil {
			return err
		}
		cp.Archive.Orders = orders
	case "order_lines":
		lines, err := p.orders.ListLinesByTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		cp.Archive.OrderLines = lines
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	return nil
}

// applyArchiveKind restores one kind from a finished backup job's archive
func (p *WorkspaceProcessor) applyArchiveKind(ctx context.Context, job *models.Job, kind string, cp *workspaceCheckpoint, targetTenant uint, backupJobID uint) error {
	backup, err := p.jobRepo.GetByID(ctx, job.TenantID, backupJobID)
	if err != nil {
		return fmt.Errorf("backup job %d: %w", backupJobID, err)
	}
	if backup.Type != models.JobTypeBackup || backup.Status != models.JobStatusCompleted {
		return fmt.Errorf("job %d is not a completed backup", backupJobID)
	}
	source, err := loadWorkspaceCheckpoint(backup)
	if err != nil || source.Archive == nil {
		return fmt.Errorf("backup job %d has no archive", backupJobID)
	}
	return p.importKind(ctx, kind, source.Archive, targetTenant, cp)
}

func (p *WorkspaceProcessor) cloneKind(ctx context.Context, sourceTenant, targetTenant uint, kind string, cp *workspaceCheckpoint) error {
	archive := &workspaceArchive{}
	if err := p.backupKindInto(ctx, sourceTenant, kind, archive); err != nil {
		return err
	}
	return p.importKind(ctx, kind, archive, targetTenant, cp)
}

func (p *WorkspaceProcessor) backupKindInto(ctx context.Context, tenantID uint, kind string, archive *workspaceArchive) error {
	tmp := workspaceCheckpoint{Archive: archive}
	return p.backupKind(ctx, tenantID, kind, &tmp)
}

// importKind writes one kind of archived records into the target tenant.
// Creation is idempotent on natural keys (SKU code, amazon order id) so a
// re-run maps existing records instead of duplicating them.
func (p *WorkspaceProcessor) importKind(ctx context.Context, kind string, archive *workspaceArchive, targetTenant uint, cp *workspaceCheckpoint) error {
	if cp.IDMap[kind] == nil {
		cp.IDMap[kind] = map[uint]uint{}
	}
	switch kind {
	case "skus":
		for i := range archive.SKUs {
			src := archive.SKUs[i]
			existing, err := p.skus.GetByCode(ctx, targetTenant, src.Code)
			if err == nil {
				cp.IDMap[kind][src.ID] = existing.ID
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			created := models.SKU{TenantID: targetTenant, Code: src.Code, CostPrice: src.CostPrice, Stock: src.Stock}
			if err := p.skus.Create(ctx, &created); err != nil {
				return err
			}
			cp.IDMap[kind][src.ID] = created.ID
		}
	case "orders":
		for i := range archive.Orders {
			src := archive.Orders[i]
			existing, err := p.orders.GetByAmazonID(ctx, targetTenant, src.AmazonOrderID)
			if err == nil {
				cp.IDMap[kind][src.ID] = existing.ID
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			created := models.Order{
				TenantID:      targetTenant,
				AmazonOrderID: src.AmazonOrderID,
				TotalCost:     src.TotalCost,
				NetRevenue:    src.NetRevenue,
			}
			if err := p.orders.Create(ctx, &created); err != nil {
				return err
			}
			cp.IDMap[kind][src.ID] = created.ID
		}
	case "order_lines":
		orderMap := cp.IDMap["orders"]
		skuMap := cp.IDMap["skus"]
		seeded := map[uint]bool{}
		for i := range archive.OrderLines {
			src := archive.OrderLines[i]
			orderID, ok := orderMap[src.OrderID]
			if !ok {
				// parent order was not imported; skip rather than orphan
				continue
			}
			if !seeded[orderID] {
				existing, err := p.orders.ListLinesByOrders(ctx, []uint{orderID})
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					// target order already has lines from an earlier attempt
					continue
				}
				seeded[orderID] = true
			}
			line := models.OrderLine{
				TenantID: targetTenant,
				OrderID:  orderID,
				SKUID:    skuMap[src.SKUID],
				Quantity: src.Quantity,
				UnitCost: src.UnitCost,
			}
			if err := p.orders.CreateLine(ctx, &line); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	return nil
}
