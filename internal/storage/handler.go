// Package storage is the shard node adapter. It decodes query envelopes
// sent by the coordinator, hands terms and global statistics to the local
// engine, and encodes the ranked rows back. It also keeps the statistics
// aggregator informed about what the shard contributes to the collection.
package storage

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

// Searcher ranks the local partition against a query envelope.
type Searcher interface {
	Search(ctx context.Context, env *proto.QueryEnvelope, opts engine.SearchOptions) ([]proto.ResultRow, error)
}

// Handler serves the shard's framed query endpoint.
type Handler struct {
	serverID   uint16
	searcher   Searcher
	debugTrace bool
	logger     *slog.Logger
}

func NewHandler(serverID uint16, searcher Searcher, debugTrace bool) *Handler {
	return &Handler{
		serverID:   serverID,
		searcher:   searcher,
		debugTrace: debugTrace,
		logger:     slog.Default().With("component", "storage-handler", "server_id", serverID),
	}
}

// ServeFrame answers one query. Any failure yields an `E` reply and never a
// partial row list.
func (h *Handler) ServeFrame(ctx context.Context, request []byte) []byte {
	env, err := proto.DecodeQueryEnvelope(request)
	if err != nil {
		h.logger.Warn("rejecting query", "error", err)
		return proto.ErrorReply(err)
	}

	opts := engine.SearchOptions{StopwordOnly: env.IsStopwordOnly()}
	if h.debugTrace {
		h.logger.Info("evaluating query",
			"scheme", env.Scheme,
			"terms", len(env.Terms),
			"links", len(env.Links),
			"collection_size", env.CollectionSize,
			"first_rank", env.FirstRank,
			"max_ranks", env.MaxRanks,
			"stopword_only", opts.StopwordOnly,
		)
	}

	rows, err := h.searcher.Search(ctx, env, opts)
	if err != nil {
		h.logger.Warn("query evaluation failed", "scheme", env.Scheme, "error", err)
		return proto.ErrorReply(err)
	}
	reply := proto.ShardReply{ServerID: h.serverID, Rows: rows}
	payload, err := reply.Encode(proto.RowKindOf(env.Scheme))
	if err != nil {
		h.logger.Error("encoding shard reply", "rows", len(rows), "error", err)
		return proto.ErrorReply(err)
	}
	return payload
}
