package publisher

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
)

type memRegistry struct {
	next      uint32
	keys      map[string]*ingestion.IngestResponse
	published []uint32
}

func newMemRegistry() *memRegistry {
	return &memRegistry{next: 1, keys: make(map[string]*ingestion.IngestResponse)}
}

func (m *memRegistry) Lookup(_ context.Context, key string) (*ingestion.IngestResponse, error) {
	if r, ok := m.keys[key]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memRegistry) Register(_ context.Context, req *ingestion.IngestRequest, numShards int) (*ingestion.IngestResponse, error) {
	resp := &ingestion.IngestResponse{DocNo: m.next, Status: StatusPending, ShardIndex: ingestion.AssignShard(m.next, numShards)}
	m.next++
	if req.IdempotencyKey != "" {
		cp := *resp
		m.keys[req.IdempotencyKey] = &cp
	}
	return resp, nil
}

func (m *memRegistry) MarkPublished(_ context.Context, docno uint32) error {
	m.published = append(m.published, docno)
	return nil
}

type memProducer struct {
	events []kafka.Event
	err    error
}

func (p *memProducer) Publish(_ context.Context, e kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type memTracker struct{ events []analytics.IngestEvent }

func (m *memTracker) TrackIngest(e analytics.IngestEvent) { m.events = append(m.events, e) }

func TestPublisher_Ingest(t *testing.T) {
	reg, prod, tr := newMemRegistry(), &memProducer{}, &memTracker{}
	p := New(reg, prod, 2).WithTracker(tr)
	ctx := context.Background()

	first, err := p.Ingest(ctx, &ingestion.IngestRequest{Title: "A", Body: "alpha"})
	require.NoError(t, err)
	second, err := p.Ingest(ctx, &ingestion.IngestRequest{Title: "B", Body: "beta", Links: []string{"A"}})
	require.NoError(t, err)

	assert.Equal(t, ingestion.IngestResponse{DocNo: 1, Status: StatusPublished, ShardIndex: 1}, *first)
	assert.Equal(t, 0, second.ShardIndex)
	require.Len(t, prod.events, 2)
	assert.Equal(t, "0", prod.events[1].Key)
	ev := prod.events[1].Value.(ingestion.IngestEvent)
	assert.Equal(t, uint32(2), ev.Document.DocNo)
	assert.Equal(t, []string{"A"}, ev.Document.Links)
	assert.Equal(t, []uint32{1, 2}, reg.published)
	assert.Len(t, tr.events, 2)
}

func TestPublisher_IdempotentReplay(t *testing.T) {
	reg, prod := newMemRegistry(), &memProducer{}
	p := New(reg, prod, 1)
	req := &ingestion.IngestRequest{Title: "A", Body: "alpha", IdempotencyKey: "k1"}

	first, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)
	again, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.DocNo, again.DocNo)
	assert.Len(t, prod.events, 1)
}

func TestPublisher_KafkaFailureLeavesPending(t *testing.T) {
	reg := newMemRegistry()
	p := New(reg, &memProducer{err: errors.New("no brokers")}, 1)
	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{Title: "A", Body: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	assert.Empty(t, reg.published)
}

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "federatedsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "federatedsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
	db, err := postgres.New(context.Background(), cfg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestPostgresRegistry(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	reg := NewPostgresRegistry(db)
	require.NoError(t, reg.Migrate(ctx))

	key := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	resp, err := reg.Register(ctx, &ingestion.IngestRequest{Title: "A", Body: "alpha", IdempotencyKey: key}, 4)
	require.NoError(t, err)
	assert.Equal(t, ingestion.AssignShard(resp.DocNo, 4), resp.ShardIndex)

	require.NoError(t, reg.MarkPublished(ctx, resp.DocNo))
	found, err := reg.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, resp.DocNo, found.DocNo)
	assert.Equal(t, StatusPublished, found.Status)

	_, err = reg.Register(ctx, &ingestion.IngestRequest{Title: "A", Body: "alpha", IdempotencyKey: key}, 4)
	assert.Error(t, err)
}
