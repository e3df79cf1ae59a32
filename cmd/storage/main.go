// Command storage runs one shard node of the federation: a partition of the
// collection behind the framed query protocol.
//
// At startup the node indexes its bootstrap corpus and, with publishStats,
// announces the partition's statistics to the aggregator. With
// consumeIngest it also indexes the documents routed to its shard from
// Kafka, publishing each document's statistics delta and a cache
// invalidation. On SIGINT or SIGTERM it stops serving queries and then
// withdraws exactly what it published.
//
// Usage:
//
//	go run ./cmd/storage [-config configs/development.yaml] [-port 7184] [-P]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/statistics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

const unsubscribeTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "listen port (overrides storage.port)")
	publish := flag.Bool("P", false, "publish statistics to the aggregator (same as storage.publishStats)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	sc := cfg.Storage
	if *port > 0 {
		sc.Port = *port
	}
	sc.PublishStats = sc.PublishStats || *publish
	log := slog.Default().With("server_id", sc.ServerID, "shard_index", sc.ShardIndex)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	index := engine.NewIndex(engine.Options{})
	if sc.DocumentsFile != "" {
		docs, err := engine.LoadDocumentsFile(sc.DocumentsFile)
		if err != nil {
			log.Error("failed to load documents", "file", sc.DocumentsFile, "error", err)
			os.Exit(1)
		}
		added, err := storage.Bootstrap(index, docs, sc.ShardIndex, cfg.Ingestion.NumShards)
		if err != nil {
			log.Error("failed to index documents", "error", err)
			os.Exit(1)
		}
		m.ShardDocCount.Set(float64(index.DocCount()))
		log.Info("partition loaded", "documents", added, "skipped", len(docs)-added)
	}

	checker := health.NewChecker()
	var publisher *storage.Publisher
	if sc.PublishStats {
		publisher = storage.NewPublisher(statistics.NewClient(sc.StatServer), uint16(sc.ServerID), sc.PublishChunk)
		if err := publisher.Publish(ctx, index.Statistics()); err != nil {
			log.Error("failed to publish statistics", "stat_server", sc.StatServer, "error", err)
			os.Exit(1)
		}
		log.Info("statistics published", "stat_server", sc.StatServer, "documents", index.DocCount())
		checker.Register("statistics", health.TCPCheck(sc.StatServer, 2*time.Second))
	}

	var consumers sync.WaitGroup
	if sc.ConsumeIngest {
		invalidations := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
		defer invalidations.Close()
		ingest := storage.NewIngestConsumer(sc.ShardIndex, index, publisher, m).NotifyIndexed(invalidations)
		// Each node has its own group: it must see every event and keep the
		// ones of its shard.
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, ingest.HandleMessage,
			kafka.WithGroupID(fmt.Sprintf("%s-storage-%d", cfg.Kafka.ConsumerGroup, sc.ServerID)),
			kafka.FromBeginning(),
		)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := consumer.Start(ctx); err != nil {
				log.Error("ingest consumer failed", "error", err)
			}
		}()
	}

	server := wire.NewServer("storage", storage.NewHandler(uint16(sc.ServerID), index, sc.DebugTrace), wire.WithMetrics(m))

	var stopMetrics func(context.Context) error = func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port, "storage",
			metrics.Route{Pattern: "GET /health/live", Handler: checker.LiveHandler()},
			metrics.Route{Pattern: "GET /health/ready", Handler: checker.ReadyHandler()},
		)
	}

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		server.Stop()
	}()

	if err := server.Serve(fmt.Sprintf(":%d", sc.Port)); err != nil {
		log.Error("storage server failed", "error", err)
		os.Exit(1)
	}

	// No more queries are served and no more documents arrive: withdraw
	// this shard's contribution.
	consumers.Wait()
	if publisher != nil {
		unsubCtx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		if err := publisher.Unsubscribe(unsubCtx); err != nil {
			log.Error("failed to withdraw statistics", "error", err)
		}
		cancel()
	}
	_ = stopMetrics(context.Background())
}
