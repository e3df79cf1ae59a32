package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
)

type fakeBatch struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (f *fakeBatch) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func TestBatchCollector_FlushOnShutdown(t *testing.T) {
	pub := &fakeBatch{}
	bc := NewBatchCollector(pub, 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	bc.TrackIngest(analytics.IngestEvent{DocNo: 1, ShardIndex: 2})
	bc.TrackIngest(analytics.IngestEvent{DocNo: 2, ShardIndex: 0})
	cancel()
	bc.Close()

	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)
	assert.Equal(t, "2", pub.batches[0][0].Key)
	assert.Equal(t, analytics.EventIngest, pub.batches[0][0].Value.(analytics.IngestEvent).Type)
	assert.Zero(t, bc.BufferLen())
}

func TestBatchCollector_FailedBatchIsRequeued(t *testing.T) {
	pub := &fakeBatch{err: errors.New("broker down")}
	bc := NewBatchCollector(pub, 2, time.Hour)
	bc.mu.Lock()
	for i := range 7 {
		bc.buffer = append(bc.buffer, kafka.Event{Key: "k", Value: i})
	}
	bc.mu.Unlock()

	bc.Flush(context.Background())
	assert.Equal(t, 6, bc.BufferLen())

	pub.err = nil
	bc.Flush(context.Background())
	assert.Zero(t, bc.BufferLen())
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 6)
}

func TestBatchCollector_FullBatchFlushesEarly(t *testing.T) {
	pub := &fakeBatch{}
	bc := NewBatchCollector(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bc.Start(ctx)

	bc.TrackIngest(analytics.IngestEvent{DocNo: 1})
	bc.TrackIngest(analytics.IngestEvent{DocNo: 2})

	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.batches) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
