package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/config"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/services"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/tasks"
	"github.com/zidallie-kenya/zidallie-backend-sub000/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL not set")
		os.Exit(1)
	}

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
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

	// Initialize Task Registry
	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, tasks.Dependencies{
		Sweeper:          disbursements,
		SweepGracePeriod: cfg.SweepGracePeriod,
	})

	if err := scheduleRecurring(ctx, db, cfg); err != nil {
		slog.Error("Failed to schedule recurring tasks", "error", err)
		os.Exit(1)
	}

	tasks.NewRunner(db, registry).Run(ctx, cfg.WorkerInterval)
}

// scheduleRecurring makes sure the sweep and the callback purge exist.
func scheduleRecurring(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	now := time.Now()

	sweep, err := (&tasks.SweepUndisbursedTaskDef{}).CreateTask(now, cfg.SweepRecurrence)
	if err != nil {
		return err
	}
	if _, err := tasks.EnsureRecurring(ctx, db, sweep); err != nil {
		return err
	}

	purge, err := tasks.PurgeCallbacksTask.CreateTask(now.Add(time.Hour), 0)
	if err != nil {
		return err
	}
	_, err = tasks.EnsureRecurring(ctx, db, purge)
	return err
}
