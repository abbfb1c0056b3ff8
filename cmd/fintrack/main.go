package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	res := cli.InitBackend(context.Background(), logger, cfg)

	txOpts := []services.Option{services.WithStoreTimeout(cfg.StoreTimeout)}
	if res.Publisher != nil {
		txOpts = append(txOpts, services.WithPublisher(res.Publisher))
	} else {
		logger.Info("Change events disabled", "reason", "no AMQP publisher")
	}
	transactions := services.NewTransactionService(res.Store, txOpts...)

	sessions := cache.NewLRUCache[core.Session](cfg.UserCacheSize, cfg.UserCacheTTL)
	users := services.NewUserService(res.Store, sessions, services.WithUserStoreTimeout(cfg.StoreTimeout))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Transactions:       transactions,
		Users:              users,
		Store:              res.Store,
		Sessions:           sessions,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"rate_limit_per_minute", cfg.RateLimitPerMinute)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
