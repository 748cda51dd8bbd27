// Package v1 wires the v1 API routes.
package v1

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sellerdesk/sellerdesk/internal/api/middleware"
	"github.com/sellerdesk/sellerdesk/internal/api/v1/handlers"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
)

// SetupRoutes configures all the v1 routes
func SetupRoutes(router fiber.Router, jobHandler *handlers.JobHandler, settlementHandler *handlers.SettlementHandler) {
	// Job routes
	jobsGroup := router.Group("/jobs")
	jobsGroup.Post("/", middleware.RequireMutate(), jobHandler.SubmitJob).Name("jobs.submit")
	jobsGroup.Get("/", jobHandler.ListJobs).Name("jobs.list")
	jobsGroup.Get("/:id", jobHandler.GetJob).Name("jobs.get")
	jobsGroup.Post("/:id/pause", middleware.RequireMutate(), jobHandler.PauseJob).Name("jobs.pause")
	jobsGroup.Post("/:id/resume", middleware.RequireMutate(), jobHandler.ResumeJob).Name("jobs.resume")
	jobsGroup.Post("/:id/cancel", middleware.RequireMutate(), jobHandler.CancelJob).Name("jobs.cancel")
	jobsGroup.Post("/:id/force-stop", middleware.RequireMutate(), jobHandler.ForceStopJob).Name("jobs.force_stop")

	// Settlement routes
	settlements := router.Group("/settlements")
	settlements.Post("/imports", middleware.RequireMutate(), settlementHandler.UploadImport).Name("settlements.upload")
	settlements.Get("/imports", settlementHandler.ListImports).Name("settlements.list")
	settlements.Get("/imports/:id", settlementHandler.GetImport).Name("settlements.get")
	settlements.Get("/imports/:id/rows", settlementHandler.ListImportRows).Name("settlements.rows")
	settlements.Post("/imports/:id/rebuild", middleware.RequireMutate(), settlementHandler.RebuildImport).Name("settlements.rebuild")
	settlements.Post("/recompute-cogs", middleware.RequireMutate(), settlementHandler.RecomputeCOGS).Name("settlements.recompute")
	settlements.Get("/audit", settlementHandler.AuditSettlement).Name("settlements.audit")
}

// Register registers the health and metrics endpoints and the guarded v1 API
func Register(app *fiber.App, memberships *repos.MembershipRepository, jobHandler *handlers.JobHandler, settlementHandler *handlers.SettlementHandler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	}).Name("health")
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler())).Name("metrics")

	v1Group := app.Group("/api/v1", middleware.AccessGuard(memberships))
	SetupRoutes(v1Group, jobHandler, settlementHandler)
}
