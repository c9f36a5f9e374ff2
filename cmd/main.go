package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"access-service/internal/cache"
	"access-service/internal/config"
	"access-service/internal/events"
	"access-service/internal/handlers"
	"access-service/internal/middleware"
	"access-service/internal/models"
	"access-service/internal/repository"
	"access-service/internal/services"
)

// @title Access Service API
// @version 1.0.0
// @description Multi-tenant role assignment and resolution service for the business/location/department hierarchy

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization

func main() {
	// Container health check mode
	if len(os.Args) > 1 && os.Args[1] == "health" {
		resp, err := http.Get("http://localhost:8080/health")
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg := config.Load()
	logger := config.InitLogger(cfg)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	if err := db.AutoMigrate(&models.BusinessContext{}, &models.RoleAssignment{}); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	contextCache, err := cache.NewContextCache(
		cfg.RedisHost,
		cfg.RedisPort,
		cfg.RedisPassword,
		cfg.RedisDB,
		cfg.CacheTTL,
	)
	if err != nil {
		log.Fatal("Failed to initialize context cache:", err)
	}
	if contextCache.IsAvailable() {
		logger.Info("Context cache initialized")
		defer contextCache.Close()
	} else {
		logger.Warn("Context cache unavailable (Redis not connected), continuing without caching")
	}

	// NATS is optional; when disabled mutations simply skip event publication
	var publisher *events.Publisher
	if cfg.NATSUrl != "" {
		publisher, err = events.NewPublisher(cfg.NATSUrl, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize events publisher, events won't be published")
			publisher = nil
		} else {
			logger.Info("NATS events publisher initialized")
			defer publisher.Close()
		}
	}

	assignmentRepo := repository.NewAssignmentRepository(db)
	contextRepo := repository.NewContextRepository(db)

	resolutionService := services.NewResolutionService(assignmentRepo, publisher, logger)
	contextService := services.NewContextService(contextRepo, contextCache, logger)

	contextHandler := handlers.NewContextHandler(contextService)
	assignmentHandler := handlers.NewAssignmentHandler(resolutionService)
	resolutionHandler := handlers.NewResolutionHandler(resolutionService)
	healthHandler := handlers.NewHealthHandler(db, contextCache)

	accessMiddleware := middleware.NewAccessMiddleware(resolutionService, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders,
		"Authorization", "X-Tenant-ID", "X-User-ID", "X-Request-ID",
		"X-Business-ID", "X-Location-ID", "X-Department-ID")
	router.Use(cors.New(corsConfig))
	router.Use(middleware.ErrorHandler(logger))

	// Health endpoints (no auth required)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	api := router.Group("/api/v1")
	api.Use(middleware.TenantMiddleware())
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		contexts := api.Group("/contexts")
		{
			contexts.POST("", contextHandler.CreateContext)
			contexts.GET("", contextHandler.ListContexts)
			contexts.GET("/:id", contextHandler.GetContext)
			contexts.PATCH("/:id", contextHandler.UpdateContext)
			contexts.DELETE("/:id", contextHandler.DeactivateContext)
			contexts.GET("/:id/children", contextHandler.GetChildren)
		}

		api.GET("/businesses/:businessId/hierarchy", contextHandler.GetHierarchy)

		assignments := api.Group("/assignments")
		{
			// Admin-only mutations
			assignments.POST("", accessMiddleware.RequireAnyRole(
				models.RoleSuperAdmin, models.RoleBusinessOwner, models.RoleBusinessManager,
			), assignmentHandler.GrantRole)
			assignments.POST("/transfer", accessMiddleware.RequireAnyRole(
				models.RoleSuperAdmin, models.RoleBusinessOwner,
			), assignmentHandler.TransferAssignments)

			// Static paths must come before :id routes
			assignments.POST("/filter", assignmentHandler.FilterAssignments)
			assignments.GET("/search", assignmentHandler.SearchAssignments)
			assignments.GET("/expiring", assignmentHandler.GetExpiringSoon)
			assignments.GET("/stats", assignmentHandler.GetStats)
			assignments.GET("/users", assignmentHandler.GetUsersWithRole)

			assignments.GET("/:id", assignmentHandler.GetAssignment)
			assignments.DELETE("/:id", accessMiddleware.RequireAnyRole(
				models.RoleSuperAdmin, models.RoleBusinessOwner, models.RoleBusinessManager,
			), assignmentHandler.RevokeAssignment)
			assignments.POST("/:id/reactivate", accessMiddleware.RequireAnyRole(
				models.RoleSuperAdmin, models.RoleBusinessOwner, models.RoleBusinessManager,
			), assignmentHandler.ReactivateAssignment)
		}

		users := api.Group("/users")
		{
			users.GET("/:userId/assignments", assignmentHandler.ListUserAssignments)
			users.GET("/:userId/assignments/history", assignmentHandler.GetAssignmentHistory)
		}

		resolve := api.Group("/resolve")
		{
			resolve.GET("/has-role", resolutionHandler.HasRole)
			resolve.GET("/effective-role", resolutionHandler.GetEffectiveRole)
			resolve.GET("/conflicts", resolutionHandler.CheckConflicts)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	log.Printf("Access service starting on port %s in %s mode", cfg.Port, cfg.Environment)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
