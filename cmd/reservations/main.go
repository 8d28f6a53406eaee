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

	"github.com/example/slot-reservations/internal/application"
	"github.com/example/slot-reservations/internal/config"
	httptransport "github.com/example/slot-reservations/internal/http"
	"github.com/example/slot-reservations/internal/identity"
	"github.com/example/slot-reservations/internal/logging"
	"github.com/example/slot-reservations/internal/metrics"
	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/persistence/memory"
	"github.com/example/slot-reservations/internal/persistence/mongostore"
	"github.com/example/slot-reservations/internal/persistence/redisstore"
	"github.com/example/slot-reservations/internal/persistence/sqlite"
	"github.com/example/slot-reservations/internal/realtime"
	"github.com/example/slot-reservations/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("reservation service stopped", "error", err)
		os.Exit(1)
	}
}

// backend is a store that can also report its health.
type backend interface {
	persistence.Store
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.Open(), nil
	case config.StoreSQLite:
		return sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLitePath), logger)
	case config.StoreRedis:
		return redisstore.Open(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case config.StoreMongo:
		return mongostore.Open(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newMetrics(cfg config.Config, logger *slog.Logger) (application.MetricsRecorder, func(context.Context), error) {
	if !cfg.CloudWatchEnabled {
		return metrics.Nop{}, func(context.Context) {}, nil
	}
	recorder, err := metrics.NewCloudWatch(metrics.Config{
		Namespace: cfg.CloudWatchNamespace,
		Region:    cfg.AWSRegion,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return recorder, recorder.Run, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()
	logger.Info("storage ready", "store", cfg.Store)

	recorder, runMetrics, err := newMetrics(cfg, logger)
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	verifier, err := identity.NewVerifier(cfg.TokenSecret, time.Now)
	if err != nil {
		return fmt.Errorf("setup token verifier: %w", err)
	}

	// Background workers stop with workerCtx after the server has drained.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()

	hub := realtime.NewHub(logger)
	hub.AllowOrigins(cfg.CORSOrigins)
	go hub.Run(workerCtx)
	go runMetrics(workerCtx)

	stores := application.Stores{Slots: store, Pointers: store, Profiles: store}
	opts := application.Options{
		Scope:   cfg.Scope(),
		Logger:  logger,
		Events:  hub,
		Metrics: recorder,
	}
	sessions := application.NewSessionServiceWithLogger(store, cfg.DefaultSlotCapacity, cfg.CatalogCacheTTL, time.Now, logger)
	reconciler := application.NewReconciler(sessions, stores, opts)
	coordinator := application.NewCoordinator(stores, opts)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Reservations: httptransport.NewReservationHandler(sessions, reconciler, coordinator, hub, logger),
		Verifier:     verifier,
		Health:       store,
		CORSOrigins:  cfg.CORSOrigins,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("reservation API listening", "addr", server.Addr, "pointer_scope", cfg.Scope())
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server encountered error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("shutdown server: %w", err)
	}
	stopWorkers()
	logger.Info("server stopped")
	return nil
}
