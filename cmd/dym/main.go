// Command dym runs the did-you-mean service over a vocabulary file with one
// entry per line.
//
// Usage:
//
//	go run ./cmd/dym [-config configs/development.yaml] [-port 7189]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/dym"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "listen port (overrides dym.port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *port > 0 {
		cfg.Dym.Port = *port
	}

	vocab := dym.NewVocabulary()
	if cfg.Dym.VocabularyFile != "" {
		vocab, err = dym.LoadVocabularyFile(cfg.Dym.VocabularyFile)
		if err != nil {
			slog.Error("failed to load vocabulary", "file", cfg.Dym.VocabularyFile, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("vocabulary loaded", "entries", vocab.Len())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	server := wire.NewServer("dym", dym.NewHandler(dym.NewProposer(vocab, cfg.Dym.MaxProposals)), wire.WithMetrics(m))
	var stopMetrics func(context.Context) error = func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port, "dym")
	}

	go func() {
		<-ctx.Done()
		server.Stop()
	}()
	if err := server.Serve(fmt.Sprintf(":%d", cfg.Dym.Port)); err != nil {
		slog.Error("dym server failed", "error", err)
		os.Exit(1)
	}
	_ = stopMetrics(context.Background())
}
