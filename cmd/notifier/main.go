package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/config"
	kafkax "github.com/ariefcatur/go-guesthouse-bookings/internal/kafka"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/notifier"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/redisx"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	name := cfg.ServiceName + "-notifier"
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, name)
	if err := run(cfg, name, logger); err != nil {
		logger.Error("notifier exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, name string, logger *slog.Logger) error {
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditFile, err := os.OpenFile(cfg.AuditLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditFile.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
	}

	svc := &notifier.Service{
		Redis:       rdb,
		Audit:       slog.New(slog.NewJSONHandler(auditFile, nil)),
		Logger:      logger,
		ServiceName: name,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, bookings.BookingTopics, cfg.NotifierWorkers, logger)
	logger.Info("notifier consumer started",
		"group", cfg.NotifierGroup,
		"topics", bookings.BookingTopics,
		"workers", cfg.NotifierWorkers,
		"audit_log", cfg.AuditLogPath,
	)
	if err := cons.Start(ctx, svc.HandleBookingEvent); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	logger.Info("shutting down consumer...")
	return nil
}
