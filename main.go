package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hybridcache/config"
	"hybridcache/internal/bootstrap"
	"hybridcache/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger.Init(logger.Config{Level: logger.LevelInfo, Service: "hybridcache"})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config: %v", err)
	}

	app, err := bootstrap.NewAdminServer(cfg)
	if err != nil {
		logger.Fatal("failed to initialize admin server: %v", err)
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down (timeout: %v)...", shutdownTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer app.Shutdown()
			done <- app.Fiber.Shutdown()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Error("error shutting down: %v", err)
			} else {
				logger.Info("shut down gracefully")
			}
		case <-ctx.Done():
			logger.Warn("shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	addr := ":" + cfg.AdminPort
	logger.Info("starting admin server on %s (backend=%s)", addr, cfg.Backend)
	if err := app.Fiber.Listen(addr); err != nil {
		logger.Fatal("failed to start server: %v", err)
	}
}
