package handlers

import (
	"bytes"
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/api/middleware"
	"github.com/sellerdesk/sellerdesk/internal/jobs"
	"github.com/sellerdesk/sellerdesk/internal/services"
)

// SettlementHandler handles HTTP requests for settlement operations
type SettlementHandler struct {
	service *services.Settlement
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(service *services.Settlement) *SettlementHandler {
	return &SettlementHandler{service: service}
}

// UploadImport accepts a settlement report, stages it, and admits the
// materialization job. The file comes as multipart field "file" or, for
// simple clients, as the raw request body with a filename query parameter.
func (h *SettlementHandler) UploadImport(c *fiber.Ctx) error {
	tenantID := middleware.TenantFromCtx(c)

	fileName := c.Query("filename", "settlement.csv")
	body := c.Body()
	if fileHeader, err := c.FormFile("file"); err == nil {
		f, err := fileHeader.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
		}
		defer func() { _ = f.Close() }()
		imp, job, serr := h.service.StartImport(c.Context(), tenantID, fileHeader.Filename, f)
		return h.uploadResponse(c, imp, job, serr)
	}
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("settlement file is required"))
	}
	imp, job, err := h.service.StartImport(c.Context(), tenantID, fileName, bytes.NewReader(body))
	return h.uploadResponse(c, imp, job, err)
}

func (h *SettlementHandler) uploadResponse(c *fiber.Ctx, imp, job interface{}, err error) error {
	if err != nil {
		if errors.Is(err, jobs.ErrJobConflict) {
			return c.Status(fiber.StatusConflict).JSON(errConflict(err.Error()))
		}
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	return c.Status(fiber.StatusAccepted).JSON(success(fiber.Map{
		"import": imp,
		"job":    job,
	}))
}

// GetImport returns one import with its counters and cached totals
func (h *SettlementHandler) GetImport(c *fiber.Ctx) error {
	importID, err := idParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	imp, err := h.service.Get(c.Context(), middleware.TenantFromCtx(c), importID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errNotFound("import not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.JSON(success(imp))
}

// ListImports returns the tenant's imports
func (h *SettlementHandler) ListImports(c *fiber.Ctx) error {
	list, err := h.service.List(c.Context(), middleware.TenantFromCtx(c), listOptions(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.JSON(success(list))
}

// ListImportRows returns the materialized rows of an import
func (h *SettlementHandler) ListImportRows(c *fiber.Ctx) error {
	importID, err := idParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	rows, err := h.service.Rows(c.Context(), middleware.TenantFromCtx(c), importID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errNotFound("import not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.JSON(success(rows))
}

// RebuildImport re-materializes missing rows for an import
func (h *SettlementHandler) RebuildImport(c *fiber.Ctx) error {
	importID, err := idParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	result, err := h.service.Rebuild(c.Context(), middleware.TenantFromCtx(c), importID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errNotFound("import not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.JSON(success(result))
}

// RecomputeCOGS re-derives match state and COGS across the tenant, or for a
// single import when the import_id query parameter is set
func (h *SettlementHandler) RecomputeCOGS(c *fiber.Ctx) error {
	var importID *uint
	if raw := c.QueryInt("import_id", 0); raw > 0 {
		id := uint(raw)
		importID = &id
	}
	result, err := h.service.RecomputeCOGS(c.Context(), middleware.TenantFromCtx(c), importID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errNotFound("import not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.JSON(success(result))
}

// AuditSettlement runs a read-only integrity audit. An optional import_id
// query parameter narrows the audit to one import.
func (h *SettlementHandler) AuditSettlement(c *fiber.Ctx) error {
	var importID *uint
	if raw := c.QueryInt("import_id", 0); raw > 0 {
		id := uint(raw)
		importID = &id
	}
	report, err := h.service.Audit(c.Context(), middleware.TenantFromCtx(c), importID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errNotFound("import not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.JSON(success(report))
}
