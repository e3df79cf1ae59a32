// Package publisher registers ingested documents and publishes them to the
// shard nodes over Kafka. Document numbers come from a Postgres sequence and
// pick the target shard.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
)

const (
	StatusPending   = "PENDING"
	StatusPublished = "PUBLISHED"
)

// Registry assigns document numbers and remembers idempotency keys.
type Registry interface {
	// Lookup returns the registration of an idempotency key, or nil.
	Lookup(ctx context.Context, idempotencyKey string) (*ingestion.IngestResponse, error)
	Register(ctx context.Context, req *ingestion.IngestRequest, numShards int) (*ingestion.IngestResponse, error)
	MarkPublished(ctx context.Context, docno uint32) error
}

// EventPublisher is the write side of the document ingest topic.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Tracker receives an analytics event per registered document.
type Tracker interface {
	TrackIngest(event analytics.IngestEvent)
}

// Publisher coordinates document registration and Kafka event production.
type Publisher struct {
	registry  Registry
	producer  EventPublisher
	numShards int
	tracker   Tracker
	logger    *slog.Logger
}

func New(registry Registry, producer EventPublisher, numShards int) *Publisher {
	if numShards <= 0 {
		numShards = 1
	}
	return &Publisher{
		registry:  registry,
		producer:  producer,
		numShards: numShards,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// WithTracker reports every registered document to t.
func (p *Publisher) WithTracker(t Tracker) *Publisher {
	p.tracker = t
	return p
}

// Ingest registers the document and publishes it for its shard. A repeated
// idempotency key returns the first registration without publishing again.
// A Kafka failure leaves the document PENDING and is not an error.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := p.registry.Lookup(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"docno", existing.DocNo,
			)
			return existing, nil
		}
	}

	resp, err := p.registry.Register(ctx, req, p.numShards)
	if err != nil {
		return nil, fmt.Errorf("registering document: %w", err)
	}

	now := time.Now().UTC()
	event := kafka.Event{
		Key: strconv.Itoa(resp.ShardIndex),
		Value: ingestion.IngestEvent{
			ShardIndex: resp.ShardIndex,
			Document:   req.Document(resp.DocNo),
			IngestedAt: now,
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish to kafka, document stuck in PENDING",
			"docno", resp.DocNo,
			"shard_index", resp.ShardIndex,
			"error", err,
		)
		return resp, nil
	}
	if err := p.registry.MarkPublished(ctx, resp.DocNo); err != nil {
		p.logger.Warn("document published but status not updated", "docno", resp.DocNo, "error", err)
	} else {
		resp.Status = StatusPublished
	}
	if p.tracker != nil {
		p.tracker.TrackIngest(analytics.IngestEvent{DocNo: resp.DocNo, ShardIndex: resp.ShardIndex, Timestamp: now})
	}
	return resp, nil
}
