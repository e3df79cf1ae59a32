// Package collector batches ingestion events for the analytics topic.
package collector

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
)

const (
	finalFlushTimeout = 5 * time.Second
	// retainedBatches bounds how many failed batches are kept for retry.
	retainedBatches = 3
)

// BatchPublisher writes several events in one call.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector buffers ingest events and publishes them when a batch is
// full or the flush interval elapses.
type BatchCollector struct {
	producer      BatchPublisher
	batchSize     int
	flushInterval time.Duration
	full          chan struct{}
	done          chan struct{}
	logger        *slog.Logger

	flushMu sync.Mutex

	mu     sync.Mutex
	buffer []kafka.Event
}

func NewBatchCollector(producer BatchPublisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		producer:      producer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		full:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "batch-collector"),
		buffer:        make([]kafka.Event, 0, batchSize),
	}
}

// Start runs the flush loop until ctx ends, then flushes one last time.
func (bc *BatchCollector) Start(ctx context.Context) {
	bc.logger.Info("batch collector started", "batch_size", bc.batchSize, "flush_interval", bc.flushInterval)
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
			case <-bc.full:
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
				bc.Flush(final)
				cancel()
				return
			}
			bc.Flush(ctx)
		}
	}()
}

// TrackIngest buffers an ingest event keyed by its shard.
func (bc *BatchCollector) TrackIngest(event analytics.IngestEvent) {
	event.Type = analytics.EventIngest
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Event{Key: strconv.Itoa(event.ShardIndex), Value: event})
	n := len(bc.buffer)
	bc.mu.Unlock()
	if n >= bc.batchSize {
		select {
		case bc.full <- struct{}{}:
		default:
		}
	}
}

// Close waits for the final flush. The context given to Start must be done.
func (bc *BatchCollector) Close() {
	<-bc.done
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Flush publishes everything buffered as one batch. A failed batch is put
// back ahead of newer events and whatever exceeds the retained limit is
// dropped from the tail.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.flushMu.Lock()
	defer bc.flushMu.Unlock()

	bc.mu.Lock()
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	err := bc.producer.PublishBatch(ctx, batch)
	if err == nil {
		bc.logger.Debug("batch flushed", "events", len(batch))
		return
	}
	bc.logger.Error("batch flush failed", "events", len(batch), "error", err)

	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.buffer = append(batch, bc.buffer...)
	if limit := bc.batchSize * retainedBatches; len(bc.buffer) > limit {
		bc.logger.Warn("analytics buffer full, events dropped", "dropped", len(bc.buffer)-limit)
		bc.buffer = bc.buffer[:limit]
	}
}
