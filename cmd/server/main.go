package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shutterhub/internal/server/api"
	"shutterhub/internal/server/blobstore"
	"shutterhub/internal/server/config"
	"shutterhub/internal/server/database"
	"shutterhub/internal/server/service"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"s3_endpoint", cfg.S3.Endpoint,
		"s3_bucket", cfg.S3.Bucket,
		"max_file_size", cfg.Upload.MaxFileSize,
		"upload_workers", cfg.Upload.Workers,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize blob storage
	blobs, err := blobstore.NewMinioStore(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.UseSSL)
	if err != nil {
		slog.Error("failed to initialize blob storage", "error", err)
		os.Exit(1)
	}
	slog.Info("blob storage initialized", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)

	// Initialize repository and services
	repo := database.NewRepository(db)
	orphans := service.NewOrphanSink(repo)
	guard := service.NewEntitlementGuard(repo)
	pipeline := service.NewPipeline(repo, blobs, guard, orphans, cfg.Upload.Workers, cfg.Upload.MaxFileSize)
	ledger := service.NewLedger(repo, blobs)
	market := service.NewMarketplace(repo, orphans)

	// Start orphan sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := service.NewOrphanSweeper(repo, blobs, cfg.Upload.SweepInterval)
	sweeper.Start(sweepCtx)

	// Setup HTTP router
	handler := api.NewHandler(pipeline, ledger, market, db)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop orphan sweeper
	sweepCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}
