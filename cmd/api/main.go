package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	taskhandler "github.com/pixelmend/inpaint-service/internal/api/handlers/task"
	"github.com/pixelmend/inpaint-service/internal/api/router"
	"github.com/pixelmend/inpaint-service/internal/api/server"
	"github.com/pixelmend/inpaint-service/internal/config"
	"github.com/pixelmend/inpaint-service/internal/infra/kafka/producer"
	taskrepo "github.com/pixelmend/inpaint-service/internal/repository/task"
	tasksvc "github.com/pixelmend/inpaint-service/internal/service/task"
	"github.com/pixelmend/inpaint-service/internal/storage/file"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	// Collect slave DSNs for replica connections.
	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Initialize object storage (MinIO).
	storage, err := file.NewStorage(
		ctx,
		cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey,
		cfg.Storage.BucketName, cfg.Storage.ExternalURL, cfg.Storage.UseSSL,
	)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Initialize repository, producer and service layer.
	repo := taskrepo.NewRepository(db)
	p := producer.New(&cfg.Kafka, strategy)
	service := tasksvc.NewService(repo, p, storage, tasksvc.Config{
		MaxDimension: cfg.Orchestrator.MaxDimension,
		BaseEstimate: cfg.Orchestrator.BaseEstimate,
	})

	// HTTP handler for task routes.
	handler := taskhandler.NewHandler(service)

	// Start HTTP server.
	r := router.Setup(handler)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	// Close the Kafka producer client.
	if err := p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
}
