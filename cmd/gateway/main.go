// Command gateway serves the HTTP query interface of the federation.
//
// A query is resolved into terms by the analyzer, weighted with one snapshot
// of the global statistics, sent to every storage node at once and merged
// into a single ranked window. Results can be cached in Redis, every
// evaluation is reported to the analytics topic, and with -ingest the
// gateway also accepts documents. With coordinator.requireApiKey the write
// routes need a key created with the apikey command.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml] [-ingest]
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

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/coordinator"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/dym"
	gwhandler "github.com/Adithya-Monish-Kumar-K/federated-search/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/federated-search/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/gateway/router"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/statistics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/redis"
)

const probeTimeout = 2 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	withIngest := flag.Bool("ingest", false, "serve POST /api/v1/documents (needs Postgres and Kafka)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	cc := cfg.Coordinator
	slog.Info("starting gateway",
		"port", cfg.Server.Port,
		"stat_server", cc.StatServer,
		"shards", cc.Shards,
		"analyzer", cc.AnalyzerAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	var resolver coordinator.TermResolver = coordinator.LocalResolver{}
	if cc.AnalyzerAddr != "" {
		resolver = analyzer.NewClient(cc.AnalyzerAddr)
		checker.Register("analyzer", health.TCPCheck(cc.AnalyzerAddr, probeTimeout))
	}
	checker.Register("statistics", health.TCPCheck(cc.StatServer, probeTimeout))
	for i, addr := range cc.Shards {
		checker.RegisterOptional(fmt.Sprintf("shard-%d", i), health.TCPCheck(addr, probeTimeout))
	}

	coord := coordinator.New(resolver, statistics.NewClient(cc.StatServer), coordinator.NewTCPShards(cc.Shards, m), coordinator.Options{
		PerShardTimeout:     cc.PerShardTimeout,
		StatsTimeout:        cc.StatsTimeout,
		MaxConcurrentShards: cc.MaxConcurrentShards,
		Trace:               cfg.Tracing.Enabled,
	}, m)

	// Background work that must outlive the HTTP server's shutdown.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, 10000)
	collector.Start(bgCtx)

	opts := []gwhandler.Option{gwhandler.WithTracker(collector)}
	if cc.DymAddr != "" {
		opts = append(opts, gwhandler.WithProposer(dym.NewClient(cc.DymAddr)))
		checker.RegisterOptional("dym", health.TCPCheck(cc.DymAddr, probeTimeout))
	}
	if a, ok := resolver.(*analyzer.Client); ok {
		opts = append(opts, gwhandler.WithAnalyzer(a))
	}

	var invalidations *kafka.Consumer
	if cc.CacheEnabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("result cache disabled", "error", err)
		} else {
			defer rc.Close()
			cache := coordinator.NewResultCache(rc, cfg.Redis.CacheTTL, m,
				coordinator.WithEvalTimeout(cc.StatsTimeout+cc.PerShardTimeout+time.Second))
			opts = append(opts, gwhandler.WithCache(cache))
			checker.RegisterOptional("redis", health.PingCheck(rc.Ping))
			// Every gateway flushes its own view, so each one joins its own group.
			group := fmt.Sprintf("%s-gateway-%s", cfg.Kafka.ConsumerGroup, uuid.NewString()[:8])
			invalidations = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, cache.HandleInvalidation, kafka.WithGroupID(group))
		}
	}
	if invalidations != nil {
		go func() {
			if err := invalidations.Start(ctx); err != nil {
				slog.Error("cache invalidation consumer failed", "error", err)
			}
		}()
	}

	var db *postgres.Client
	if *withIngest || cc.RequireAPIKey {
		db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("ingestion and api keys need postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	var ingest *ingesthandler.Handler
	if *withIngest {
		registry := publisher.NewPostgresRegistry(db)
		if err := registry.Migrate(ctx); err != nil {
			slog.Error("failed to migrate document registry", "error", err)
			os.Exit(1)
		}
		docProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer docProducer.Close()
		ingest = ingesthandler.New(publisher.New(registry, docProducer, cfg.Ingestion.NumShards))
	}

	var keys gwmw.KeyValidator
	if cc.RequireAPIKey {
		validator := apikey.NewValidator(db)
		if err := validator.Migrate(ctx); err != nil {
			slog.Error("failed to migrate api key table", "error", err)
			os.Exit(1)
		}
		keys = validator
		slog.Info("api keys required on write routes")
	}

	limiter := gwmw.NewClientLimiter(cc.RateLimit, cc.RateBurst)
	if err := limiter.TrustProxies(cc.TrustedProxies...); err != nil {
		slog.Error("invalid trusted proxy list", "error", err)
		os.Exit(1)
	}
	limiter.StartCleanup(ctx)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(router.Deps{
			Handler:        gwhandler.New(gwhandler.Config{DefaultScheme: cc.DefaultScheme, DefaultPageSize: cc.DefaultPageSize, MaxPageSize: cc.MaxPageSize}, coord, opts...),
			Ingest:         ingest,
			Health:         checker,
			Metrics:        m,
			Limiter:        limiter,
			Keys:           keys,
			RequestTimeout: cc.StatsTimeout + cc.PerShardTimeout + 5*time.Second,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var stopMetrics func(context.Context) error = func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port, "gateway")
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		_ = stopMetrics(shutdownCtx)
	}()

	slog.Info("gateway listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	collector.Close()
	slog.Info("gateway stopped")
}
