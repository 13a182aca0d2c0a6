// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"tessera/internal/domain/migrate"
	"tessera/internal/domain/record"
	"tessera/internal/domain/schema"
	"tessera/internal/domain/validate"
	"tessera/internal/infrastructure/http/v1/handlers"
	"tessera/internal/infrastructure/http/v1/middleware"
	"tessera/internal/infrastructure/storage/postgres"
	"tessera/internal/infrastructure/storage/postgres/entity_repo"
	"tessera/internal/infrastructure/storage/postgres/record_repo"
	"tessera/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection pool (used by health checks).
	Pool *postgres.Pool

	// TxManager provides transactional execution for all repositories.
	TxManager *postgres.TxManager

	// Logger for request logging.
	Logger *logger.Logger

	// Auditor records schema changes; nil disables the audit trail.
	Auditor schema.Auditor

	// MaxFields caps field definitions per entity (0 means default).
	MaxFields int

	// MaxBatchSize caps batch operation size (0 means default).
	MaxBatchSize int
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// Shared wiring
	entityRepo := entity_repo.New(cfg.TxManager)
	recordRepo := record_repo.New(cfg.TxManager)
	engine := migrate.NewEngine(recordRepo)

	schemaService := schema.NewService(schema.ServiceConfig{
		Repo:      entityRepo,
		TxManager: cfg.TxManager,
		Migrator:  engine,
		Auditor:   cfg.Auditor,
		ExprCheck: validate.CheckExpressions,
		MaxFields: cfg.MaxFields,
	})
	recordService := record.NewService(recordRepo, entityRepo, cfg.TxManager)
	batchService := record.NewBatchService(recordRepo, entityRepo, cfg.TxManager, cfg.MaxBatchSize)

	baseHandler := handlers.NewBaseHandler()
	entityHandler := handlers.NewEntityHandler(baseHandler, schemaService)
	recordHandler := handlers.NewRecordHandler(baseHandler, recordService)
	batchHandler := handlers.NewBatchHandler(baseHandler, batchService)

	// API v1
	api := router.Group("/api/v1")
	{
		entities := api.Group("/entities")
		{
			entities.GET("", entityHandler.List)
			entities.POST("", entityHandler.Create)
			entities.GET("/:id", entityHandler.Get)
			entities.PUT("/:id", entityHandler.Update)
			entities.DELETE("/:id", entityHandler.Delete)
			entities.POST("/:id/affected-count", entityHandler.AffectedCount)
			entities.GET("/:id/records", recordHandler.ListByEntity)
		}

		records := api.Group("/records")
		{
			records.POST("", recordHandler.Create)
			records.GET("/:id", recordHandler.Get)
			records.PUT("/:id", recordHandler.Update)
			records.DELETE("/:id", recordHandler.Delete)

			records.POST("/batch", batchHandler.Create)
			records.POST("/batch/update-field", batchHandler.UpdateField)
			records.POST("/batch/delete", batchHandler.Delete)
		}
	}

	return router
}
