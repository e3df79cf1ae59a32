package analyzer

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

// Client calls a remote analyzer service.
type Client struct {
	addr string
}

func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

func (c *Client) Addr() string {
	return c.addr
}

// Analyze sends text and asks for up to n related terms.
func (c *Client) Analyze(ctx context.Context, text string, n uint16) (*proto.AnalyzeReply, error) {
	payload, err := proto.EncodeTextRequest(proto.TextRequest{Count: n, Text: text}, proto.TagQueryText)
	if err != nil {
		return nil, err
	}
	raw, err := wire.Request(ctx, c.addr, payload)
	if err != nil {
		return nil, err
	}
	return proto.DecodeAnalyzeReply(raw)
}

// Resolve returns the distinct search terms of text, in query order.
func (c *Client) Resolve(ctx context.Context, text string) ([]proto.Term, error) {
	reply, err := c.Analyze(ctx, text, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[proto.TermKey]struct{}, len(reply.Terms))
	terms := make([]proto.Term, 0, len(reply.Terms))
	for _, at := range reply.Terms {
		key := proto.TermKey{Type: at.Type, Value: at.Value}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, proto.Term{
			Type:   at.Type,
			Value:  at.Value,
			Length: 1,
			Weight: at.Weight,
		})
	}
	return terms, nil
}
