package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/sellerdesk/sellerdesk/config"
	"github.com/sellerdesk/sellerdesk/internal/api/middleware"
	"github.com/sellerdesk/sellerdesk/internal/api/v1/handlers"
	v1 "github.com/sellerdesk/sellerdesk/internal/api/v1/routes"
	"github.com/sellerdesk/sellerdesk/internal/db"
	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
	"github.com/sellerdesk/sellerdesk/internal/jobs"
	"github.com/sellerdesk/sellerdesk/internal/logger"
	"github.com/sellerdesk/sellerdesk/internal/services"
	"github.com/sellerdesk/sellerdesk/internal/settlement"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}
	logger.InitializeAndConfigure()

	database, err := db.New(db.Options{
		Host:     config.GetEnv("DB_HOST", db.DefaultHost),
		User:     config.GetEnv("DB_USER", db.DefaultUser),
		Password: config.GetEnv("DB_PASSWORD", db.DefaultPassword),
		DBName:   config.GetEnv("DB_NAME", db.DefaultDBName),
		Port:     config.GetEnvInt("DB_PORT", db.DefaultPort),
	})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Repositories
	jobRepo := repos.NewJobRepository(database)
	importRepo := repos.NewSettlementImportRepository(database)
	rowRepo := repos.NewSettlementRowRepository(database)
	orderRepo := repos.NewOrderRepository(database)
	skuRepo := repos.NewSKURepository(database)
	membershipRepo := repos.NewMembershipRepository(database)

	// Job engine
	registry := jobs.NewRegistry()
	registry.Register(models.JobTypeBulkDelete, jobs.NewBulkDeleteProcessor(orderRepo))
	registry.Register(models.JobTypeStockReset, jobs.NewStockResetProcessor(skuRepo))
	registry.Register(models.JobTypeSettlementImport,
		settlement.NewPipelineFactory(importRepo, rowRepo, orderRepo, skuRepo))
	registry.Register(models.JobTypeBackup, jobs.NewWorkspaceProcessor(models.JobTypeBackup, orderRepo, skuRepo, jobRepo))
	registry.Register(models.JobTypeRestore, jobs.NewWorkspaceProcessor(models.JobTypeRestore, orderRepo, skuRepo, jobRepo))
	registry.Register(models.JobTypeClone, jobs.NewWorkspaceProcessor(models.JobTypeClone, orderRepo, skuRepo, jobRepo))
	registry.Register(models.JobTypeNotificationExport,
		jobs.NewNotificationExportProcessor(membershipRepo, jobs.LogNotifier{}))

	runner := jobs.NewRunner(jobRepo, registry, jobs.RunnerConfigFromEnv())
	supervisor := jobs.NewSupervisor(jobRepo, runner, jobs.SupervisorConfigFromEnv())

	// Services
	jobService := services.NewJobService(jobRepo, supervisor)
	engine := settlement.NewEngine(importRepo, rowRepo, orderRepo, skuRepo)
	auditor := settlement.NewAuditor(importRepo, rowRepo, orderRepo, skuRepo)
	settlementService := services.NewSettlementService(importRepo, rowRepo, jobService, engine, auditor)

	// HTTP surface
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    config.GetEnvInt("HTTP_BODY_LIMIT", 32*1024*1024),
	})
	app.Use(middleware.Logger())
	v1.Register(app, membershipRepo,
		handlers.NewJobHandler(jobService),
		handlers.NewSettlementHandler(settlementService))

	// Scheduler loop
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go supervisor.Run(ctx, &wg)

	// Graceful shutdown
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("Shutdown signal received, stopping...")
		cancel()
		wg.Wait()
		if err := app.Shutdown(); err != nil {
			logger.Errorf("Server shutdown failed: %v", err)
		}
	}()

	addr := ":" + config.GetEnv("API_PORT", "8080")
	if err := app.Listen(addr); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
