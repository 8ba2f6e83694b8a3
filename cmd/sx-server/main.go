package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"sxledger/internal/cache"
	"sxledger/internal/cli"
	"sxledger/internal/formula"
	apphttp "sxledger/internal/http"
	"sxledger/internal/log"
	"sxledger/internal/seed"
	"sxledger/internal/services"
)

// refreshInterval moves the observation window forward as days pass.
const refreshInterval = time.Hour

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentHTTP)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	if cfg.SeedFile != "" {
		f, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			logger.Error("Failed to load seed file", "error", err, "path", cfg.SeedFile)
			os.Exit(1)
		}
		res, err := seed.Apply(ctx, repo, f)
		if err != nil {
			logger.Error("Failed to apply seed file", "error", err, "path", cfg.SeedFile)
			os.Exit(1)
		}
		logger.Info("Seed applied",
			"path", cfg.SeedFile,
			"accounts", res.Accounts,
			"created", res.Created,
			"updated", res.Updated)
	}

	publisher, amqpClient := cli.InitPublisher(ctx, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	ledger, accountCache := cli.NewLedger(repo, cfg.AccountCacheTTL)
	eval := formula.NewEvaluator()
	session := services.NewSession(repo, ledger, eval, publisher)
	if err := session.Refresh(ctx); err != nil {
		logger.Error("Failed to build instance model", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Session:   session,
		Evaluator: eval,
		Ready:     repo,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting sxledger server", "port", cfg.Port, "mirror_backend", cfg.MirrorBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		cache.RunCleanup(gctx, time.Minute, accountCache)
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := session.Advance(gctx); err != nil {
					logger.Warn("Moving observation window failed", "error", err)
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully", "requests", srv.Metrics().TotalRequests)
}
