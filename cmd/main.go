package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"facility-alerting/internal/config"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/services"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := services.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Startup failed: %v", err)
	}

	if err := svc.Run(ctx); err != nil {
		logger.Errorf("Service stopped with error: %v", err)
		return
	}
	logger.Infof("Service stopped")
}
