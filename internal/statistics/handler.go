package statistics

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

// Handler serves the aggregator's framed endpoint.
type Handler struct {
	stats  *GlobalStats
	logger *slog.Logger
}

func NewHandler(stats *GlobalStats) *Handler {
	return &Handler{
		stats:  stats,
		logger: slog.Default().With("component", "statistics-handler"),
	}
}

// ServeFrame decodes the whole request before touching the counters, so a
// malformed publish never applies partially.
func (h *Handler) ServeFrame(_ context.Context, request []byte) []byte {
	req, err := proto.DecodeStatsRequest(request)
	if err != nil {
		h.logger.Warn("rejecting statistics request", "error", err)
		return proto.ErrorReply(err)
	}

	switch r := req.(type) {
	case *proto.PublishRequest:
		h.stats.Publish(r.ServerID, r.Delta)
		return proto.OKReply()
	case *proto.StatsQuery:
		return proto.EncodeStatsValues(h.stats.Query(r.Lookups))
	default:
		return proto.ErrorReply(proto.ErrUnknownCommand)
	}
}
