// Command analyzer runs the query analysis service. It turns query text
// into search terms and, when a feature vector file is configured, proposes
// related terms by cosine similarity.
//
// Usage:
//
//	go run ./cmd/analyzer [-config configs/development.yaml] [-port 7182]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "listen port (overrides analyzer.port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *port > 0 {
		cfg.Analyzer.Port = *port
	}

	var vectors *analyzer.VectorStore
	if cfg.Analyzer.VectorsFile != "" {
		vectors, err = analyzer.LoadVectorsFile(cfg.Analyzer.VectorsFile)
		if err != nil {
			slog.Error("failed to load feature vectors", "file", cfg.Analyzer.VectorsFile, "error", err)
			os.Exit(1)
		}
		slog.Info("feature vectors loaded", "features", vectors.Len())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	server := wire.NewServer("analyzer", analyzer.NewHandler(analyzer.New(vectors)), wire.WithMetrics(m))

	var stopMetrics func(context.Context) error = func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		checker := health.NewChecker()
		stopMetrics = metrics.StartServer(cfg.Metrics.Port, "analyzer",
			metrics.Route{Pattern: "GET /health/live", Handler: checker.LiveHandler()},
		)
	}

	go func() {
		<-ctx.Done()
		server.Stop()
	}()
	if err := server.Serve(fmt.Sprintf(":%d", cfg.Analyzer.Port)); err != nil {
		slog.Error("analyzer server failed", "error", err)
		os.Exit(1)
	}
	_ = stopMetrics(context.Background())
}
