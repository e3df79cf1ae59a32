package statistics

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

// Client talks to a statistics aggregator.
type Client struct {
	addr string
}

func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

func (c *Client) Addr() string {
	return c.addr
}

// Lookup fetches the document frequency of every key and the collection
// size in a single request, so all values come from one snapshot.
func (c *Client) Lookup(ctx context.Context, keys []proto.TermKey) ([]int64, int64, error) {
	payload, err := proto.NewStatsQuery(keys).Encode()
	if err != nil {
		return nil, 0, err
	}
	reply, err := wire.Request(ctx, c.addr, payload)
	if err != nil {
		return nil, 0, err
	}
	values, err := proto.DecodeStatsValues(reply, len(keys)+1)
	if err != nil {
		return nil, 0, err
	}
	return values[:len(keys)], values[len(keys)], nil
}

// Publish sends delta in chunks of at most chunkSize df changes over one
// connection. It stops at the first rejected chunk.
func (c *Client) Publish(ctx context.Context, serverID uint16, delta proto.StatsDelta, chunkSize int) error {
	_, err := c.PublishChunks(ctx, serverID, delta.Chunks(chunkSize))
	return err
}

// PublishChunks sends chunks in order over one connection and returns how
// many of them the aggregator acknowledged before the first failure.
func (c *Client) PublishChunks(ctx context.Context, serverID uint16, chunks []proto.StatsDelta) (int, error) {
	conn, err := wire.Dial(ctx, c.addr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	for i, chunk := range chunks {
		req := &proto.PublishRequest{ServerID: serverID, Delta: chunk}
		payload, err := req.Encode()
		if err != nil {
			return i, fmt.Errorf("encoding chunk %d: %w", i, err)
		}
		reply, err := conn.IssueRequest(ctx, payload)
		if err != nil {
			return i, fmt.Errorf("publishing chunk %d: %w", i, err)
		}
		if _, err := proto.ParseReply(reply); err != nil {
			return i, fmt.Errorf("publishing chunk %d: %w", i, err)
		}
	}
	return len(chunks), nil
}
