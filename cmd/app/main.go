package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/airways/config"
	"github.com/Domenick1991/airways/internal/bootstrap"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/telemetry"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zlog := logger.NewZeroLog(cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, cfg.App.Env)
	if err != nil {
		zlog.Error("telemetry init failed", logger.Err(err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			zlog.Warn("telemetry shutdown failed", logger.Err(err))
		}
	}()

	svc, err := bootstrap.NewServices(ctx, cfg, zlog)
	if err != nil {
		zlog.Error("wiring failed", logger.Err(err))
		os.Exit(1)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			zlog.Warn("close failed", logger.Err(err))
		}
	}()

	zlog.Info("starting api", logger.F("env", cfg.App.Env), logger.F("storage", cfg.Storage.Driver))
	if err := bootstrap.Run(ctx, cfg, svc, zlog); err != nil {
		zlog.Error("server error", logger.Err(err))
		return
	}
	zlog.Info("api stopped")
}
