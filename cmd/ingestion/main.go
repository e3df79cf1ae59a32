// Command ingestion runs the document ingestion service. Documents posted to
// /api/v1/documents are registered in Postgres, assigned to a shard and
// published on the document ingest topic for the storage nodes.
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

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
)

const (
	trackerBatchSize     = 100
	trackerFlushInterval = 5 * time.Second
)

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
	slog.Info("starting ingestion service", "port", cfg.Server.Port, "num_shards", cfg.Ingestion.NumShards)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	registry := publisher.NewPostgresRegistry(db)
	if err := registry.Migrate(ctx); err != nil {
		slog.Error("failed to migrate document registry", "error", err)
		os.Exit(1)
	}

	docProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer docProducer.Close()
	eventProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer eventProducer.Close()

	// The tracker outlives the HTTP server so its last batch is flushed.
	trackerCtx, stopTracker := context.WithCancel(context.Background())
	tracker := collector.NewBatchCollector(eventProducer, trackerBatchSize, trackerFlushInterval)
	tracker.Start(trackerCtx)

	pub := publisher.New(registry, docProducer, cfg.Ingestion.NumShards).WithTracker(tracker)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))

	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", handler.New(pub).Ingest)
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

	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	stopTracker()
	tracker.Close()
	slog.Info("ingestion service stopped")
}
