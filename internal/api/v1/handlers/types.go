// Package handlers contains the HTTP handlers for the v1 API.
package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// Slug is a stable machine-readable response category
type Slug string

// Response slugs
const (
	SuccessSlug      Slug = "success"
	ErrorSlug        Slug = "error"
	InvalidInputSlug Slug = "invalid-input"
	ConflictSlug     Slug = "conflict"
	NotFoundSlug     Slug = "not-found"
	ServerErrorSlug  Slug = "server-error"
)

// Response is the envelope for every v1 API response
type Response struct {
	Slug  Slug        `json:"slug"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

func success(data interface{}) Response {
	return Response{
		Slug: SuccessSlug,
		Data: data,
	}
}

func errInvalidInput(msg string) Response {
	return Response{
		Slug:  InvalidInputSlug,
		Error: msg,
	}
}

func errConflict(msg string) Response {
	return Response{
		Slug:  ConflictSlug,
		Error: msg,
	}
}

func errNotFound(msg string) Response {
	return Response{
		Slug:  NotFoundSlug,
		Error: msg,
	}
}

func errServer(msg string) Response {
	return Response{
		Slug:  ServerErrorSlug,
		Error: msg,
	}
}

// idParam parses the :id path parameter
func idParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "valid id is required")
	}
	return uint(id), nil
}

// listOptions builds pagination options from query parameters
func listOptions(c *fiber.Ctx) *models.ListOptions {
	limit := c.QueryInt("limit", models.DefaultLimit)
	if limit <= 0 || limit > models.DefaultLimit {
		limit = models.DefaultLimit
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return &models.ListOptions{Limit: limit, Offset: offset}
}
