package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"sxledger/internal/cli"
	"sxledger/internal/core"
	"sxledger/internal/formula"
	"sxledger/internal/log"
	"sxledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentScheduler)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	publisher, amqpClient := cli.InitPublisher(ctx, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	ledger, accountCache := cli.NewLedger(repo, cfg.AccountCacheTTL)
	processor := services.NewRecurringProcessor(repo, ledger, formula.NewEvaluator(), publisher)

	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		accountCache.CleanExpired()

		report, err := processor.ProcessDue(runCtx, core.DateOf(time.Now()))
		if err != nil {
			logger.Error("Auto-create run failed", "error", err)
			return
		}
		for _, e := range report.Errors {
			logger.Warn("Transaction not created", "error", e)
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.RunSchedule, run); err != nil {
		logger.Error("Invalid run schedule", "error", err, "schedule", cfg.RunSchedule)
		os.Exit(1)
	}

	logger.Info("Running initial auto-create pass")
	run()

	c.Start()
	logger.Info("Auto-create worker started", "schedule", cfg.RunSchedule)

	<-ctx.Done()
	logger.Info("Shutting down auto-create worker")
	select {
	case <-c.Stop().Done():
		logger.Info("Auto-create worker shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
}
