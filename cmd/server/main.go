package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/config"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/handlers"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/middleware"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/services"
	"github.com/zidallie-kenya/zidallie-backend-sub000/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := services.AutoMigrate(db); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Failed to get database handle", "error", err)
		os.Exit(1)
	}

	var directory services.Directory = services.NewGormDirectory(db)
	if cfg.RedisURL != "" {
		cache, err := services.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("Redis unavailable, directory reads go to the database", "error", err)
		} else {
			defer cache.Close()
			directory = services.NewCachedDirectory(directory, cache, cfg.DirectoryCacheTTL)
		}
	}

	gateway, err := services.NewMpesaClient(cfg.Gateway)
	if err != nil {
		slog.Error("Failed to initialise gateway client", "error", err)
		os.Exit(1)
	}

	disbursements := services.NewDisbursementService(db, directory, gateway)
	settlement := services.NewSettlementService(db, directory, disbursements)
	payments := services.NewPaymentService(db, directory, gateway)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.CustomErrorHandler

	// Middleware
	e.Use(middleware.RequestLogger())
	e.Use(echomw.Recover())

	handlers.RegisterRoutes(e,
		handlers.NewPaymentHandler(payments, settlement, disbursements),
		handlers.NewHealthHandler(sqlDB),
		cfg.CallbackToken,
		promhttp.Handler(),
	)

	go func() {
		slog.Info("Server starting", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
