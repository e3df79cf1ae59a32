// Command statserver runs the statistics aggregator: the single owner of
// the global document frequencies and collection size that every storage
// node publishes into and the gateway reads before each query.
//
// The counters live in memory and are rebuilt by the storage nodes
// re-publishing at startup. With statistics.persist they are also
// snapshotted to Postgres and restored at startup. A restored snapshot
// already holds the contribution of every node that published before it was
// taken, so a node that re-publishes on top of it is counted twice. Start
// with -fresh when the storage nodes are going to re-publish.
//
// Usage:
//
//	go run ./cmd/statserver [-config configs/development.yaml] [-port 7183] [-fresh]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/statistics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "listen port (overrides statistics.port)")
	fresh := flag.Bool("fresh", false, "skip restoring the latest snapshot (storage nodes will re-publish)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *port > 0 {
		cfg.Statistics.Port = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	stats := statistics.New(m)
	checker := health.NewChecker()

	var saved <-chan struct{}
	if cfg.Statistics.Persist {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store, err := statistics.NewStore(ctx, db)
		if err != nil {
			slog.Error("failed to prepare statistics store", "error", err)
			os.Exit(1)
		}
		if *fresh {
			slog.Info("starting with empty statistics, snapshot not restored")
		} else {
			snap, err := store.LatestSnapshot(ctx)
			if err != nil {
				slog.Error("failed to load statistics snapshot", "error", err)
				os.Exit(1)
			}
			if snap != nil {
				stats.Restore(*snap)
				slog.Warn("statistics restored; storage nodes that re-publish now are counted twice",
					"collection_size", snap.CollectionSize, "terms", len(snap.Terms))
			}
		}
		saved = store.StartPeriodicSave(ctx, stats, cfg.Statistics.SnapshotInterval)
		checker.RegisterOptional("postgres", health.PingCheck(db.Ping))
	}

	server := wire.NewServer("statistics", statistics.NewHandler(stats), wire.WithMetrics(m))

	var stopMetrics func(context.Context) error = func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port, "statserver",
			metrics.Route{Pattern: "GET /health/live", Handler: checker.LiveHandler()},
			metrics.Route{Pattern: "GET /health/ready", Handler: checker.ReadyHandler()},
		)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		server.Stop()
	}()

	if err := server.Serve(fmt.Sprintf(":%d", cfg.Statistics.Port)); err != nil {
		slog.Error("statistics server failed", "error", err)
		os.Exit(1)
	}
	if saved != nil {
		<-saved
	}
	_ = stopMetrics(context.Background())
}
