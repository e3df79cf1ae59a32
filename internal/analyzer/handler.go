package analyzer

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

// DefaultRelatedTerms is the number of related terms when a request names none.
const DefaultRelatedTerms = 20

// Handler serves the analyzer's framed endpoint.
type Handler struct {
	analyzer *Analyzer
	logger   *slog.Logger
}

func NewHandler(a *Analyzer) *Handler {
	return &Handler{
		analyzer: a,
		logger:   slog.Default().With("component", "analyzer-handler"),
	}
}

func (h *Handler) ServeFrame(_ context.Context, request []byte) []byte {
	req, err := proto.DecodeTextRequest(request, proto.TagQueryText, DefaultRelatedTerms)
	if err != nil {
		h.logger.Warn("rejecting analyze request", "error", err)
		return proto.ErrorReply(err)
	}
	reply, err := h.analyzer.Analyze(req.Text, int(req.Count)).Encode()
	if err != nil {
		return proto.ErrorReply(err)
	}
	return reply
}
