package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/worker"
)

const statsInterval = time.Minute

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required to run the audit worker")
		os.Exit(1)
	}

	// The worker only consumes; the backend must not open a publisher of its own.
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	if err := worker.CheckBackend(bcfg.Type); err != nil {
		logger.Error("Unsupported backend for the audit worker", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	bcfg.AMQPURL = ""
	res, err := backend.NewFactory(logger.Logger.With(log.FieldComponent, log.ComponentBackend)).CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	audit := worker.NewAuditWorker(res.Store, cfg.StoreTimeout)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := consumer.Close(); err != nil {
			logger.Error("AMQP close error", "error", err)
		}
	})

	logger.Info("Starting fintrack-worker",
		"backend", cfg.DataBackend,
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return audit.Run(gctx, consumer)
	})
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				processed, failed := audit.Counts()
				logger.Info("Audit worker stats", "processed", processed, "failed", failed)
			}
		}
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Audit worker stopped", "error", err)
		_ = consumer.Close()
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	if err := res.Cleanup(); err != nil {
		logger.Error("Backend cleanup error", "error", err)
	}
	processed, failed := audit.Counts()
	logger.Info("Worker stopped gracefully", "processed", processed, "failed", failed)
}
