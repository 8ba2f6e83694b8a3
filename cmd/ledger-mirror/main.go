package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"sxledger/internal/amqp"
	"sxledger/internal/cli"
	"sxledger/internal/log"
	"sxledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentMirror)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	ledger, _ := cli.NewLedger(repo, cfg.AccountCacheTTL)
	writer, cleanup, err := cli.InitMirrorWriter(ctx, cfg, ledger)
	if err != nil {
		logger.Error("Failed to initialize mirror backend", "error", err, "backend", cfg.MirrorBackend)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	processor := services.NewMirrorProcessor(repo, writer, services.MirrorProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
		MaxRetries:   services.DefaultMirrorProcessorConfig().MaxRetries,
	})

	// Catch up on anything committed while the mirror was down.
	if n := processor.ProcessPending(ctx); n > 0 {
		logger.Info("Startup mirror sweep complete", "mirrored", n)
	}
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start mirror sweeper", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on periodic sweep", "error", err)
		} else {
			defer client.Close()
			g.Go(func() error {
				err := client.ConsumeTransactionCreated(gctx, processor.HandleMessage)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}
	} else {
		logger.Info("AMQP not configured, relying on periodic sweep", "interval", cfg.SyncInterval)
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Warn("Mirror sweeper did not stop cleanly", "error", err)
	}
	logger.Info("Ledger mirror shutdown complete")
}
