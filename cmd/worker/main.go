package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixelmend/inpaint-service/internal/config"
	"github.com/pixelmend/inpaint-service/internal/infra/kafka/consumer"
	jobmsg "github.com/pixelmend/inpaint-service/internal/kafka/handlers/task"
	"github.com/pixelmend/inpaint-service/internal/pipeline"
	taskrepo "github.com/pixelmend/inpaint-service/internal/repository/task"
	"github.com/pixelmend/inpaint-service/internal/storage/file"
	"github.com/pixelmend/inpaint-service/internal/worker"
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

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka fetch/commit.
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

	// The generative pipeline stays resident across jobs: loaded lazily on
	// the first job, released on shutdown.
	resident := pipeline.NewResident(pipeline.NewClient(cfg.Pipeline.Endpoint))

	// Executor with one job slot per accelerator.
	repo := taskrepo.NewRepository(db)
	executor := worker.New(repo, storage, resident, worker.Config{
		Slots:         cfg.Worker.Accelerators,
		MaxAttempts:   cfg.Worker.MaxAttempts,
		RetryDelay:    cfg.Worker.RetryDelay,
		SoftTimeLimit: cfg.Worker.SoftTimeLimit,
		HardTimeLimit: cfg.Worker.HardTimeLimit,
	})

	// Kafka consumer feeding jobs to the executor.
	jobHandler := jobmsg.NewJobHandler(executor)
	c := consumer.New(&cfg.Kafka, strategy, jobHandler)

	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for the consumer goroutine to finish its current job.
	wg.Wait()

	// Release the resident pipeline.
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := resident.Close(closeCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to release pipeline")
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

	// Close the Kafka consumer client.
	if err := c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
}
