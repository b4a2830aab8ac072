package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/config"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/httpx"
	kafkax "github.com/ariefcatur/go-guesthouse-bookings/internal/kafka"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/postgres"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/redisx"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, cfg.ServiceName)
	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// DB. No fallback: without Postgres there is nothing to serve.
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	store := postgres.NewStore(db)

	// Redis
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, idempotency and status lookups go to the database", "addr", cfg.RedisAddr, "error", err)
		}
	}

	// Kafka producer
	emitter := &httpx.Emitter{Service: cfg.ServiceName, Logger: logger}
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
		prod.Start()
		emitter.Producer = prod
	} else {
		logger.Warn("KAFKA_BROKERS disabled, booking events are not published")
	}

	ledger := bookings.NewLedger(store, logger)
	limiter := httpx.NewRateLimiter(cfg.BookingRatePerMin)

	router := httpx.NewRouter(httpx.NewAuthenticator(cfg.JWTSecret))
	(&httpx.BookingsHandler{
		Lifecycle: bookings.NewLifecycle(store, ledger, logger),
		Events:    emitter,
		Redis:     rdb,
		Limiter:   limiter,
		Logger:    logger,
	}).Register(router)
	(&httpx.InventoryHandler{
		Ledger: ledger,
		Rates:  bookings.NewRates(store, ledger),
		Events: emitter,
		Logger: logger,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if limiter != nil {
		g.Go(func() error {
			t := time.NewTicker(5 * time.Minute)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					limiter.Sweep(30 * time.Minute)
				}
			}
		})
	}

	err = g.Wait()
	if prod != nil {
		prod.Close()      // tutup inbox -> flush & close writer
		prod.WaitClosed() // drain
	}
	return err
}
