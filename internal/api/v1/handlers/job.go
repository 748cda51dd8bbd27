package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/api/middleware"
	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/jobs"
	"github.com/sellerdesk/sellerdesk/internal/services"
)

// JobHandler handles HTTP requests for job operations
type JobHandler struct {
	service *services.Job
}

// NewJobHandler creates a new job handler
func NewJobHandler(service *services.Job) *JobHandler {
	return &JobHandler{service: service}
}

// SubmitJobRequest is the body for job submission
type SubmitJobRequest struct {
	Type     string          `json:"type"`
	Priority int             `json:"priority"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// SubmitJob admits a new job for the authenticated tenant
func (h *JobHandler) SubmitJob(c *fiber.Ctx) error {
	var req SubmitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	jobType, err := models.ParseJobType(req.Type)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}

	job := &models.Job{
		TenantID: middleware.TenantFromCtx(c),
		Type:     jobType,
		Priority: req.Priority,
		Params:   req.Params,
	}
	if err := h.service.Submit(c.Context(), job); err != nil {
		if errors.Is(err, jobs.ErrJobConflict) {
			return c.Status(fiber.StatusConflict).JSON(errConflict(err.Error()))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.Status(fiber.StatusAccepted).JSON(success(job))
}

// GetJob returns one job with its progress and error log
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	jobID, err := idParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	job, err := h.service.Get(c.Context(), middleware.TenantFromCtx(c), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errNotFound("job not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.JSON(success(job))
}

// ListJobs returns the tenant's jobs, optionally filtered by status
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	list, err := h.service.List(c.Context(), middleware.TenantFromCtx(c),
		c.Query("status"), listOptions(c))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	return c.JSON(success(list))
}

// PauseJob requests suspension of a running job
func (h *JobHandler) PauseJob(c *fiber.Ctx) error {
	return h.control(c, h.service.Pause)
}

// ResumeJob re-enters a paused job through the scheduler
func (h *JobHandler) ResumeJob(c *fiber.Ctx) error {
	return h.control(c, h.service.Resume)
}

// CancelJob requests termination of a job
func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	return h.control(c, h.service.Cancel)
}

// ForceStopJob finalizes a job stuck in cancelling
func (h *JobHandler) ForceStopJob(c *fiber.Ctx) error {
	return h.control(c, h.service.ForceStop)
}

func (h *JobHandler) control(c *fiber.Ctx, op func(ctx context.Context, tenantID, jobID uint) (*models.Job, error)) error {
	jobID, err := idParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	job, err := op(c.Context(), middleware.TenantFromCtx(c), jobID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(errNotFound("job not found"))
		case errors.Is(err, services.ErrInvalidTransition):
			return c.Status(fiber.StatusConflict).JSON(errConflict(err.Error()))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.JSON(success(job))
}
