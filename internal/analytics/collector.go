package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
)

const publishTimeout = 5 * time.Second

// EventPublisher is the write side of a Kafka topic.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector hands query events to a background publisher so that tracking
// never blocks a request. Events arriving while the queue is full, or after
// Close, are counted as dropped.
type Collector struct {
	producer EventPublisher
	queue    chan kafka.Event
	done     chan struct{}
	dropped  atomic.Int64
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewCollector(producer EventPublisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		queue:    make(chan kafka.Event, bufferSize),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "analytics-collector"),
	}
}

// Start runs the publisher until Close is called or ctx ends. On ctx end
// the events already queued are still published.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started", "buffer_size", cap(c.queue))
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case event, ok := <-c.queue:
			if !ok {
				return
			}
			c.publish(ctx, event)
		case <-ctx.Done():
			for {
				select {
				case event, ok := <-c.queue:
					if !ok {
						return
					}
					c.publish(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// TrackQuery queues a query event keyed by its scheme.
func (c *Collector) TrackQuery(event QueryEvent) {
	event.Type = EventQuery
	c.enqueue(kafka.Event{Key: event.Scheme, Value: event})
}

func (c *Collector) enqueue(event kafka.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.queue <- event:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics queue full, dropping events", "dropped_total", n)
		}
	}
}

// Dropped returns how many events were never queued.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits until the queue is drained.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event kafka.Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := c.producer.Publish(ctx, event); err != nil {
		c.logger.Error("failed to publish analytics event", "key", event.Key, "error", err)
	}
}
