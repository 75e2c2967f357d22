package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/chain"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/composition"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/config"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/infra"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/logging"
	"github.com/jameslimjy/schroders-tetf-demo-sub000/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	ledger, err := chain.Dial(cfg.LedgerRPCURL)
	if err != nil {
		logger.Error("dial ledger", "error", err)
		os.Exit(1)
	}

	table := composition.Demo()
	if cfg.CompositionsPath != "" {
		table, err = composition.LoadFile(cfg.CompositionsPath)
		if err != nil {
			logger.Error("load compositions", "error", err)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, db, cache, ledger, table, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
