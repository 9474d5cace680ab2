package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"curricula/infrastructure/config"
	"curricula/infrastructure/di"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger

	// Rebuild state before accepting any writes.
	if err := container.Recoverer.Recover(ctx); err != nil {
		logger.Fatal("state recovery failed", zap.Error(err))
	}
	container.Recoverer.Start(cfg.SnapshotInterval)

	if err := container.Adapter.Start(); err != nil {
		logger.Fatal("weight adaptation scheduler failed to start", zap.Error(err))
	}

	handler := container.Router.Setup()
	container.Router.SetReady()

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	container.Adapter.Stop()
	container.Recoverer.Stop()

	// Final snapshot keeps the next start from replaying the whole log.
	if err := container.Recoverer.Snapshot(shutdownCtx); err != nil {
		logger.Warn("final snapshot failed", zap.Error(err))
	}
	if err := container.TxLog.Close(); err != nil {
		logger.Error("transaction log close error", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	log.Println("Server stopped")
}
