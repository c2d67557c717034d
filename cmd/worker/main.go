package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Domenick1991/airways/config"
	"github.com/Domenick1991/airways/internal/bootstrap"
	"github.com/Domenick1991/airways/internal/email"
	"github.com/Domenick1991/airways/internal/kafka"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/telemetry"
	"github.com/Domenick1991/airways/internal/worker"
	kafkaGo "github.com/segmentio/kafka-go"
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
		_ = shutdownTelemetry(shutdownCtx)
	}()

	svc, err := bootstrap.NewServices(ctx, cfg, zlog)
	if err != nil {
		zlog.Error("wiring failed", logger.Err(err))
		os.Exit(1)
	}
	defer svc.Close()

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		consume := func(topic string, handler func(context.Context, kafkaGo.Message) error) {
			if topic == "" {
				return
			}
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topic, zlog)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer consumer.Close()
				if err := consumer.Consume(ctx, handler); err != nil {
					zlog.Error("consumer stopped", logger.F("topic", topic), logger.Err(err))
				}
			}()
		}
		consume(cfg.Kafka.PaymentCallbacksTopic, worker.PaymentCallbacks(svc.Payments, zlog))
		consume(cfg.Kafka.NotificationsTopic, worker.Notifications(email.NewSender(zlog), zlog))
	} else {
		zlog.Warn("kafka disabled, consumers not started")
	}

	zlog.Info("worker started")
	worker.RunJobs(ctx, zlog,
		worker.Job{Name: "payment-sync", Interval: cfg.Worker.PaymentSyncInterval, Run: svc.Payments.SyncPending},
		worker.Job{Name: "cancelled-flight-sweep", Interval: cfg.Worker.FlightSweepInterval, Run: svc.Cancellation.SweepCancelledFlights},
	)
	wg.Wait()
	zlog.Info("worker stopped")
}
