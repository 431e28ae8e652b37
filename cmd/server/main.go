package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	invoicingapp "github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/application/invoicing"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/infrastructure/cache"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/infrastructure/config"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/infrastructure/logger"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/infrastructure/parasut"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/infrastructure/persistence"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/interfaces/http/handler"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/interfaces/http/middleware"
	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Uzmanlio Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Accounting provider wiring
	providerCfg := &parasut.Config{
		Enabled:        cfg.Accounting.Enabled,
		ClientID:       cfg.Accounting.ClientID,
		ClientSecret:   cfg.Accounting.ClientSecret,
		CompanyID:      cfg.Accounting.CompanyID,
		RedirectURI:    cfg.Accounting.RedirectURI,
		APIBaseURL:     cfg.Accounting.APIBaseURL,
		OAuthBaseURL:   cfg.Accounting.OAuthBaseURL,
		TimeoutSeconds: int(cfg.Accounting.Timeout / time.Second),
	}
	if err := providerCfg.Validate(); err != nil {
		log.Fatal("Invalid accounting configuration", zap.Error(err))
	}

	credentialRepo := persistence.NewGormCredentialRepository(db.DB)
	tokenManager, err := parasut.NewTokenManager(providerCfg, credentialRepo, log.Named("parasut"))
	if err != nil {
		log.Fatal("Failed to create token manager", zap.Error(err))
	}
	providerClient, err := parasut.NewClient(providerCfg, tokenManager, log.Named("parasut"))
	if err != nil {
		log.Fatal("Failed to create provider client", zap.Error(err))
	}
	jobPoller := parasut.NewJobPoller(providerCfg, providerClient, log.Named("parasut"))
	gateway := parasut.NewGateway(providerCfg, tokenManager, providerClient, jobPoller, log.Named("parasut"))

	// Contact lock: Redis when configured, in-memory otherwise
	var contactLock invoicing.ContactLock
	if cfg.Redis.Enabled {
		redisLock, err := cache.NewRedisContactLock(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisLock.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		contactLock = redisLock
		log.Info("Using Redis contact lock")
	} else {
		contactLock = cache.NewInMemoryContactLock()
		log.Info("Using in-memory contact lock")
	}

	// Application services
	workflowService := invoicingapp.NewWorkflowService(gateway, contactLock, log.Named("workflow"), cfg.Accounting.Enabled)
	connectionService := invoicingapp.NewConnectionService(providerCfg, tokenManager, log.Named("connection"))

	// Background token renewal
	if cfg.Accounting.Enabled {
		tokenManager.StartAutoRenewal()
		defer tokenManager.Stop()
		log.Info("Token auto-renewal started")
	}

	// HTTP handlers
	invoicingHandler := handler.NewInvoicingHandler(workflowService, connectionService, log.Named("http"))

	// Setup gin
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware chain order matters:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	// Setup API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(invoicingHandler)
	r.Setup()

	// Simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
