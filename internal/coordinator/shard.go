package coordinator

import (
	"context"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

// ShardClient sends an encoded query envelope to one shard node.
type ShardClient interface {
	Addr() string
	Query(ctx context.Context, envelope []byte, kind proto.RowKind) ([]proto.ResultRow, error)
}

// TCPShard opens one connection per query, guarded by a circuit breaker.
type TCPShard struct {
	addr    string
	breaker *resilience.CircuitBreaker
}

// NewTCPShard creates a client for addr. breaker may be nil.
func NewTCPShard(addr string, breaker *resilience.CircuitBreaker) *TCPShard {
	return &TCPShard{addr: addr, breaker: breaker}
}

// NewTCPShards creates one client per address, each with its own breaker.
// `E` replies do not count against a breaker: the shard answered.
func NewTCPShards(addrs []string, m *metrics.Metrics) []ShardClient {
	shards := make([]ShardClient, len(addrs))
	for i, addr := range addrs {
		cfg := resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			IsFailure:        func(err error) bool { return !apperrors.IsRemote(err) },
		}
		if m != nil {
			cfg.OnStateChange = func(name string, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		}
		shards[i] = NewTCPShard(addr, resilience.NewCircuitBreaker("shard-"+addr, cfg))
	}
	return shards
}

func (s *TCPShard) Addr() string {
	return s.addr
}

func (s *TCPShard) Query(ctx context.Context, envelope []byte, kind proto.RowKind) ([]proto.ResultRow, error) {
	var rows []proto.ResultRow
	call := func() error {
		raw, err := wire.Request(ctx, s.addr, envelope)
		if err != nil {
			return err
		}
		reply, err := proto.DecodeShardReply(raw, kind)
		if err != nil {
			return err
		}
		rows = reply.Rows
		return nil
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(call)
	} else {
		err = call()
	}
	return rows, err
}
