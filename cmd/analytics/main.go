// Command analytics runs the query analytics service. It consumes the
// query events emitted by the gateways and the ingest events emitted by the
// ingestion service, aggregates them in memory and serves the totals at
// GET /api/v1/analytics. When Postgres is reachable the totals are
// snapshotted every minute and restored at startup.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-port 8082]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *port > 0 {
		cfg.Server.Port = *port
	}
	slog.Info("starting analytics service", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.AnalyticsEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	checker := health.NewChecker()
	var saved <-chan struct{}

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("analytics snapshots disabled", "error", err)
	} else {
		defer db.Close()
		store := aggregator.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate analytics store", "error", err)
			os.Exit(1)
		}
		snap, err := store.LatestSnapshot(ctx)
		switch {
		case err != nil:
			slog.Warn("could not restore analytics snapshot", "error", err)
		case snap != nil:
			agg.Restore(*snap)
			slog.Info("analytics restored", "total_queries", snap.TotalQueries)
		}
		saved = store.StartPeriodicSave(ctx, agg, snapshotInterval)
		checker.RegisterOptional("postgres", health.PingCheck(db.Ping))
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, agg.HandleEvent)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer failed", "error", err)
		}
	}()

	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.Handle("GET /health/live", checker.LiveHandler())
	mux.Handle("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.RequestID(middleware.Metrics(m)(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	if saved != nil {
		<-saved
	}
	slog.Info("analytics service stopped")
}
