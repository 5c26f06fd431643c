package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/collectpay/collect-api/internal/audit"
	"github.com/collectpay/collect-api/internal/auth"
	"github.com/collectpay/collect-api/internal/config"
	"github.com/collectpay/collect-api/internal/database"
	"github.com/collectpay/collect-api/internal/expiry"
	"github.com/collectpay/collect-api/internal/notify"
	"github.com/collectpay/collect-api/internal/orders"
	"github.com/collectpay/collect-api/pkg/metrics"
	"github.com/collectpay/collect-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the payment gateway server with graceful
// shutdown support. It wires the order store, reconciliation engine, expiry
// processor and API routes.
func main() {
	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	auditLogger := audit.NewLogger(db)
	auditHandlers := audit.NewGinHandlers(auditLogger)

	authService := auth.NewService(db, cfg.SessionSecret, cfg.TrustedHostList())
	authHandlers := auth.NewGinHandlers(authService, auditLogger)

	orderService := orders.NewService(db)

	notifyService := notify.NewService(db, orderService, auditLogger, cfg.LateWindow())
	notifyHandlers := notify.NewGinHandlers(notifyService)

	orderHandlers := orders.NewGinHandlers(orderService, authService, notifyService, auditLogger, cfg.UploadDir)

	// Create and start the expiry processor; it runs for the process
	// lifetime and is cancelled only at shutdown
	expiryProcessor := expiry.NewProcessor(orderService, auditLogger, cfg.LateWindow(), cfg.SweepInterval())
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go expiryProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg, authService, authHandlers, orderHandlers, notifyHandlers, auditHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers, grouped by
// caller:
//   - /api/auth: public registration and login
//   - /api/merchant: dashboard endpoints behind session JWTs
//   - /api/v1: the integration surface — signed order creation, QR attach,
//     order reads and notification ingestion
//   - /api/admin: operator read endpoints behind the admin role
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	notifyHandlers *notify.GinHandlers,
	auditHandlers *audit.GinHandlers,
) {
	router.GET("/metrics", metrics.Handler())
	router.Static("/uploads/qr", filepath.Join(cfg.UploadDir, "qr"))

	// Auth routes
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", authHandlers.RegisterHandler())
		authGroup.POST("/login", authHandlers.LoginHandler())
	}

	// Merchant dashboard routes
	merchant := router.Group("/api/merchant")
	merchant.Use(middleware.SessionAuth(authService))
	{
		merchant.GET("/profile", authHandlers.ProfileHandler())
		merchant.GET("/domains", authHandlers.ListDomainsHandler())
		merchant.POST("/domains", authHandlers.AddDomainHandler())
		merchant.DELETE("/domains/:id", authHandlers.RemoveDomainHandler())
		merchant.POST("/regenerate-keys", authHandlers.RegenerateKeysHandler())
		merchant.GET("/orders", orderHandlers.ListMerchantOrdersHandler())
		merchant.POST("/orders", orderHandlers.CreateOrderHandler())
		merchant.GET("/dashboard", orderHandlers.DashboardHandler())
		merchant.GET("/transactions", notifyHandlers.ListTransactionsHandler())
	}

	// Integration routes
	v1 := router.Group("/api/v1")
	{
		signed := v1.Group("/orders")
		signed.Use(middleware.APIKeyAuth(authService))
		{
			signed.POST("", orderHandlers.CreateOrderHandler())
		}

		v1.POST("/qr/upload", orderHandlers.AttachQRHandler())
		v1.GET("/orders/:order_id", orderHandlers.GetOrderHandler())
		v1.POST("/notifications", notifyHandlers.IngestHandler())
	}

	// Admin routes
	admin := router.Group("/api/admin")
	admin.Use(middleware.SessionAuth(authService), middleware.AdminOnly())
	{
		admin.GET("/merchants", authHandlers.AdminMerchantsHandler())
		admin.GET("/unmapped-notifications", notifyHandlers.ListUnmappedHandler())
		admin.GET("/audit-logs", auditHandlers.ListHandler())
	}
}
