package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/simbroker/papertrade-api/internal/auth"
	"github.com/simbroker/papertrade-api/internal/config"
	"github.com/simbroker/papertrade-api/internal/database"
	"github.com/simbroker/papertrade-api/internal/engine"
	"github.com/simbroker/papertrade-api/internal/ledger"
	"github.com/simbroker/papertrade-api/internal/orders"
	"github.com/simbroker/papertrade-api/internal/quotes"
	"github.com/simbroker/papertrade-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Demo credentials registered when none are configured.
var (
	demoAPIKey      = "demo-api-key"
	demoAPISecret   = "demo-api-secret"
	schedulerKey    = "scheduler-api-key"
	schedulerSecret = "scheduler-api-secret"
)

// main initializes and runs the paper-trading API server with its background
// engine processor and graceful shutdown support.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg)

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	registerCredentials(authService, cfg)

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	ordersService := orders.NewService(db)
	ordersHandlers := orders.NewGinHandlers(ordersService)

	quoteService := quotes.NewService(db)
	quoteHandlers := quotes.NewGinHandlers(quoteService)

	engineService := engine.NewService(db, quoteService, ledgerService.GetDatabase(), engine.Config{
		QuoteFreshness: cfg.Engine.QuoteFreshness,
		RetryCap:       cfg.Engine.RetryCap,
		BatchSize:      cfg.Engine.BatchSize,
		ClaimTimeout:   cfg.Engine.ClaimTimeout,
		BatchBudget:    cfg.Engine.BatchBudget,
		Retention:      cfg.Engine.Retention,
	})
	engineHandlers := engine.NewGinHandlers(engineService)

	// Background processor: scheduled processing and cleanup passes. Manual
	// triggers through the internal endpoints may overlap with these.
	processor := engine.NewProcessor(engineService, cfg.Engine.ProcessInterval, cfg.Engine.CleanupInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg, authHandlers, ordersHandlers, ledgerHandlers, quoteHandlers, engineHandlers)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

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

	processorCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupLogging configures zerolog: pretty console output in development,
// JSON to a rotating file when one is configured.
func setupLogging(cfg *config.Config) {
	var sink io.Writer = os.Stdout
	if cfg.Logging.File != "" {
		sink = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	} else if os.Getenv("ENV") != "production" {
		sink = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	zlog.Logger = zerolog.New(sink).With().Timestamp().Logger()

	switch cfg.Logging.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// registerCredentials registers the configured API credentials, falling back
// to demo values so a fresh checkout runs out of the box. The scheduler
// credential carries the engine permission for the internal endpoints.
func registerCredentials(authService *auth.Service, cfg *config.Config) {
	apiKey, apiSecret := cfg.Auth.APIKey, cfg.Auth.APISecret
	if apiKey == "" {
		apiKey, apiSecret = demoAPIKey, demoAPISecret
	}
	authService.RegisterAPICredentials(apiKey, apiSecret, "trade")
	authService.RegisterAPICredentials(schedulerKey, schedulerSecret, "trade", "engine")
}

// setupRoutes configures all API endpoints:
// - Auth routes: public token issuance
// - Account and order routes: protected by JWT authentication
// - Internal routes: engine triggers and quote ingest, protected by the
//   scheduler credential
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandlers *auth.GinHandlers,
	ordersHandlers *orders.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	quoteHandlers *quotes.GinHandlers,
	engineHandlers *engine.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		accounts := v1.Group("/accounts")
		accounts.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			accounts.POST("", ledgerHandlers.CreateAccountHandler())
			accounts.GET("/:account_id", ledgerHandlers.GetAccountHandler())
			accounts.POST("/:account_id/deposit", ledgerHandlers.DepositHandler())
		}

		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			orderGroup.POST("", ordersHandlers.CreateOrderHandler())
			orderGroup.GET("", ordersHandlers.ListOrdersHandler())
			orderGroup.GET("/:order_id", ordersHandlers.GetOrderHandler())
			orderGroup.DELETE("/:order_id", ordersHandlers.CancelOrderHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.Auth.JWTSecret))
		{
			internal.POST("/process", engineHandlers.ProcessOrdersHandler())
			internal.POST("/cleanup", engineHandlers.CleanupOrdersHandler())
			internal.GET("/stats", engineHandlers.StatsHandler())
			internal.PUT("/quotes", quoteHandlers.SetQuoteHandler())
		}
	}
}
