package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rdcourtney/flatmap/api/internal/config"
	"github.com/rdcourtney/flatmap/api/internal/database"
	"github.com/rdcourtney/flatmap/api/internal/handlers"
	"github.com/rdcourtney/flatmap/api/internal/logger"
	"github.com/rdcourtney/flatmap/api/internal/middleware"
	"github.com/rdcourtney/flatmap/api/internal/repository"
	"github.com/rdcourtney/flatmap/api/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting Flatmap API", map[string]interface{}{
		"version":     "0.1.0",
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"map_root":    cfg.Flatmaps.Root,
	})

	// Create database connection pool
	ctx := context.Background()
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
	}
	defer db.Close()

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	// Initialize repository and service layers
	flatmapRepo := repository.NewFlatmapRepository(db)
	viewerService, err := services.NewViewerService(flatmapRepo, cfg.Flatmaps, log)
	if err != nil {
		log.Fatal("Failed to create viewer service", err, map[string]interface{}{
			"cache_size": cfg.Flatmaps.SessionCacheSize,
		})
	}

	// Optionally build every published map's session up front so first
	// requests don't pay the indexing cost.
	if cfg.Flatmaps.WarmCache {
		if err := viewerService.WarmUp(ctx); err != nil {
			log.Error("Session warm-up failed", err, map[string]interface{}{
				"concurrency": cfg.Flatmaps.WarmConcurrency,
			})
		}
	}

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// Register health check routes
	healthHandler := handlers.NewHealthHandler(db, viewerService, cfg.Server.Env, cfg.Flatmaps.Root)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)

	// Initialize handlers
	flatmapHandler := handlers.NewFlatmapHandler(viewerService)
	viewerHandler := handlers.NewViewerHandler(viewerService)

	// Register API v1 routes
	v1 := router.Group("/api/v1")
	{
		maps := v1.Group("/maps")
		{
			maps.GET("", flatmapHandler.List)
			maps.GET("/:mapID", flatmapHandler.Get)
			maps.GET("/:mapID/annotations/:featureID", viewerHandler.Annotation)
			maps.GET("/:mapID/features", viewerHandler.Features)
			maps.GET("/:mapID/properties", viewerHandler.Properties)
			maps.POST("/:mapID/facets", viewerHandler.RegisterFacet)
			maps.POST("/:mapID/facets/refresh", viewerHandler.RefreshFacets)
			maps.DELETE("/:mapID/facets/:facetID", viewerHandler.UnregisterFacet)
			maps.GET("/:mapID/filter", viewerHandler.Filter)
			maps.POST("/:mapID/filter/match", viewerHandler.MatchFilter)
			maps.GET("/:mapID/pathways", viewerHandler.Pathways)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}
