package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/resilience"
)

var ErrUnsubscribed = errors.New("shard already unsubscribed from the statistics server")

// StatsPublisher delivers statistics deltas to the aggregator.
type StatsPublisher interface {
	PublishChunks(ctx context.Context, serverID uint16, chunks []proto.StatsDelta) (int, error)
}

// Publisher publishes the shard's statistics and remembers the running
// total of everything the aggregator acknowledged, so that Unsubscribe can
// withdraw exactly that amount.
type Publisher struct {
	client    StatsPublisher
	serverID  uint16
	chunkSize int
	retry     resilience.RetryConfig

	mu           sync.Mutex
	collection   int64
	published    map[proto.TermKey]int64
	unsubscribed bool

	logger *slog.Logger
}

func NewPublisher(client StatsPublisher, serverID uint16, chunkSize int) *Publisher {
	return &Publisher{
		client:    client,
		serverID:  serverID,
		chunkSize: chunkSize,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Retryable:    func(err error) bool { return errors.Is(err, apperrors.ErrRequestNotSent) },
		},
		published: make(map[proto.TermKey]int64),
		logger:    slog.Default().With("component", "stats-publisher", "server_id", serverID),
	}
}

// Publish sends delta to the aggregator. Only chunks that provably never
// left the shard are sent again, starting at the first unacknowledged one.
// A chunk lost after it was written may or may not have been applied; it is
// reported as an error and not resent, since resending could apply it twice.
func (p *Publisher) Publish(ctx context.Context, delta proto.StatsDelta) error {
	if delta.Empty() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribed {
		return ErrUnsubscribed
	}
	return p.publishLocked(ctx, delta)
}

// Unsubscribe publishes the negation of everything published so far. Later
// calls to Publish fail with ErrUnsubscribed.
func (p *Publisher) Unsubscribe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribed {
		return nil
	}
	p.unsubscribed = true
	withdraw := p.totalsLocked().Negate()
	if withdraw.Empty() {
		return nil
	}
	if err := p.publishLocked(ctx, withdraw); err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	p.logger.Info("statistics withdrawn",
		"collection_size", withdraw.CollectionSizeChange,
		"terms", len(withdraw.Changes),
	)
	return nil
}

// Published returns the acknowledged running totals.
func (p *Publisher) Published() proto.StatsDelta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalsLocked()
}

func (p *Publisher) publishLocked(ctx context.Context, delta proto.StatsDelta) error {
	chunks := delta.Chunks(p.chunkSize)
	total := len(chunks)
	retry := p.retry
	retry.OnRetry = func(attempt int, err error) {
		p.logger.Warn("resuming statistics publish", "attempt", attempt, "remaining_chunks", len(chunks), "error", err)
	}
	err := resilience.Retry(ctx, "statistics publish", retry, func() error {
		n, err := p.client.PublishChunks(ctx, p.serverID, chunks)
		for _, c := range chunks[:n] {
			p.recordLocked(c)
		}
		chunks = chunks[n:]
		return err
	})
	if err != nil {
		p.logger.Error("statistics publish failed",
			"acknowledged_chunks", total-len(chunks),
			"chunks", total,
			"delivery_unknown", !errors.Is(err, apperrors.ErrRequestNotSent) && !apperrors.IsRemote(err),
			"error", err,
		)
		return err
	}
	p.logger.Debug("statistics published",
		"chunks", total,
		"collection_change", delta.CollectionSizeChange,
		"terms", len(delta.Changes),
	)
	return nil
}

func (p *Publisher) recordLocked(chunk proto.StatsDelta) {
	p.collection += chunk.CollectionSizeChange
	for _, c := range chunk.Changes {
		v := p.published[c.Key] + c.Increment
		if v == 0 {
			delete(p.published, c.Key)
			continue
		}
		p.published[c.Key] = v
	}
}

func (p *Publisher) totalsLocked() proto.StatsDelta {
	delta := proto.StatsDelta{
		CollectionSizeChange: p.collection,
		Changes:              make([]proto.DFChange, 0, len(p.published)),
	}
	for key, v := range p.published {
		delta.Changes = append(delta.Changes, proto.DFChange{Key: key, Increment: v})
	}
	slices.SortFunc(delta.Changes, func(a, b proto.DFChange) int {
		if c := strings.Compare(a.Key.Type, b.Key.Type); c != 0 {
			return c
		}
		return strings.Compare(a.Key.Value, b.Key.Value)
	})
	return delta
}
