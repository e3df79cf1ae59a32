package dym

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

// Handler serves did-you-mean requests.
type Handler struct {
	proposer *Proposer
	logger   *slog.Logger
}

func NewHandler(p *Proposer) *Handler {
	return &Handler{
		proposer: p,
		logger:   slog.Default().With("component", "dym-handler"),
	}
}

func (h *Handler) ServeFrame(_ context.Context, request []byte) []byte {
	req, err := proto.DecodeTextRequest(request, proto.TagSearchText, DefaultMaxProposals)
	if err != nil {
		h.logger.Warn("rejecting dym request", "error", err)
		return proto.ErrorReply(err)
	}
	reply, err := proto.EncodeProposals(h.proposer.Propose(req.Text, int(req.Count)))
	if err != nil {
		return proto.ErrorReply(err)
	}
	return reply
}

// Client calls a remote did-you-mean service.
type Client struct {
	addr string
}

func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

func (c *Client) Addr() string {
	return c.addr
}

// Propose asks for rewrites of text, consulting up to n vocabulary ranks.
func (c *Client) Propose(ctx context.Context, text string, n uint16) ([]string, error) {
	payload, err := proto.EncodeTextRequest(proto.TextRequest{Count: n, Text: text}, proto.TagSearchText)
	if err != nil {
		return nil, err
	}
	raw, err := wire.Request(ctx, c.addr, payload)
	if err != nil {
		return nil, err
	}
	return proto.DecodeProposals(raw)
}
