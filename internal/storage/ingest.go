package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

// Indexer adds documents to the local partition.
type Indexer interface {
	AddDocument(doc engine.Document) (proto.StatsDelta, error)
	DocCount() int
}

// EventPublisher announces newly indexed documents, for instance on the
// cache invalidation topic.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// IngestConsumer indexes the ingest events addressed to this shard and
// publishes the statistics delta of every new document.
type IngestConsumer struct {
	shardIndex int
	index      Indexer
	publisher  *Publisher
	notifier   EventPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewIngestConsumer creates a consumer for shardIndex. publisher and m may
// be nil.
func NewIngestConsumer(shardIndex int, index Indexer, publisher *Publisher, m *metrics.Metrics) *IngestConsumer {
	return &IngestConsumer{
		shardIndex: shardIndex,
		index:      index,
		publisher:  publisher,
		metrics:    m,
		logger:     slog.Default().With("component", "ingest-consumer", "shard_index", shardIndex),
	}
}

// NotifyIndexed makes the consumer publish an invalidation event after
// every indexed document.
func (c *IngestConsumer) NotifyIndexed(p EventPublisher) *IngestConsumer {
	c.notifier = p
	return c
}

// HandleMessage is the kafka.MessageHandler of the document ingest topic.
// Undecodable events and events of other shards are skipped.
func (c *IngestConsumer) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
	if err != nil {
		c.logger.Error("failed to decode ingest event", "key", string(key), "error", err)
		return nil
	}
	if event.ShardIndex != c.shardIndex {
		return nil
	}

	delta, err := c.index.AddDocument(event.Document)
	if errors.Is(err, engine.ErrDuplicateDocument) {
		c.logger.Debug("skipping duplicate document", "docno", event.Document.DocNo)
		return nil
	}
	if err != nil {
		return fmt.Errorf("indexing document %d: %w", event.Document.DocNo, err)
	}
	if c.metrics != nil {
		c.metrics.DocsIndexedTotal.Inc()
		c.metrics.ShardDocCount.Set(float64(c.index.DocCount()))
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, delta); err != nil {
			c.logger.Error("document indexed but statistics not published",
				"docno", event.Document.DocNo,
				"error", err,
			)
		}
	}
	c.notify(ctx, event.Document.DocNo)
	c.logger.Info("document indexed", "docno", event.Document.DocNo, "title", event.Document.Title)
	return nil
}

func (c *IngestConsumer) notify(ctx context.Context, docno uint32) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.Publish(ctx, kafka.Event{
		Key: strconv.Itoa(c.shardIndex),
		Value: ingestion.InvalidationEvent{
			Reason: fmt.Sprintf("document %d indexed by shard %d", docno, c.shardIndex),
			At:     time.Now().UTC(),
		},
	})
	if err != nil {
		c.logger.Warn("failed to publish cache invalidation", "docno", docno, "error", err)
	}
}

// Bootstrap indexes docs into index, skipping documents of other shards
// when numShards is positive, and returns how many were added.
func Bootstrap(index Indexer, docs []engine.Document, shardIndex, numShards int) (int, error) {
	added := 0
	for _, doc := range docs {
		if numShards > 0 && ingestion.AssignShard(doc.DocNo, numShards) != shardIndex {
			continue
		}
		if _, err := index.AddDocument(doc); err != nil {
			return added, fmt.Errorf("bootstrapping document %d: %w", doc.DocNo, err)
		}
		added++
	}
	return added, nil
}
