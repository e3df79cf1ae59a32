package statistics

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

var fox = stem("fox")

func stem(v string) proto.TermKey {
	return proto.TermKey{Type: "stem", Value: v}
}

func lookup(keys ...proto.TermKey) []proto.StatsLookup {
	return proto.NewStatsQuery(keys).Lookups
}

func TestGlobalStats_PublishThenQuery(t *testing.T) {
	g := New(nil)
	g.Publish(1, proto.StatsDelta{
		CollectionSizeChange: 1,
		Changes:              []proto.DFChange{{Key: fox, Increment: 3}},
	})

	values := g.Query(lookup(fox, proto.TermKey{Type: "stem", Value: "unseen"}))
	assert.Equal(t, []int64{3, 0, 1}, values)
}

func TestGlobalStats_NegationRestoresState(t *testing.T) {
	g := New(nil)
	base := proto.StatsDelta{CollectionSizeChange: 10, Changes: []proto.DFChange{{Key: fox, Increment: 4}}}
	g.Publish(1, base)
	before := g.Snapshot()

	deltas := []proto.StatsDelta{
		{CollectionSizeChange: 2, Changes: []proto.DFChange{{Key: fox, Increment: 1}}},
		{CollectionSizeChange: -1, Changes: []proto.DFChange{{Key: stem("dog"), Increment: 7}}},
		{Changes: []proto.DFChange{{Key: fox, Increment: -6}}},
	}
	for _, d := range deltas {
		g.Publish(2, d)
	}
	for i := len(deltas) - 1; i >= 0; i-- {
		g.Publish(2, deltas[i].Negate())
	}

	after := g.Snapshot()
	assert.Equal(t, before.CollectionSize, after.CollectionSize)
	assert.Equal(t, before.Terms[fox], after.Terms[fox])
	assert.Equal(t, int64(0), after.Terms[stem("dog")])
}

func TestGlobalStats_NoClamping(t *testing.T) {
	g := New(nil)
	g.Publish(1, proto.StatsDelta{Changes: []proto.DFChange{{Key: fox, Increment: -2}}})
	assert.Equal(t, []int64{-2, 0}, g.Query(lookup(fox)))
}

func TestGlobalStats_ConcurrentInterleavings(t *testing.T) {
	g := New(nil)
	const writers, rounds = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				g.Publish(1, proto.StatsDelta{CollectionSizeChange: 1, Changes: []proto.DFChange{{Key: fox, Increment: 1}}})
				values := g.Query(lookup(fox))
				// df and collection size move together in every delta
				assert.Equal(t, values[0], values[1])
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, []int64{writers * rounds, writers * rounds}, g.Query(lookup(fox)))
}

func TestGlobalStats_SnapshotRestore(t *testing.T) {
	g := New(metrics.NewWithRegisterer(prometheus.NewRegistry()))
	g.Publish(1, proto.StatsDelta{CollectionSizeChange: 5, Changes: []proto.DFChange{{Key: fox, Increment: 2}}})
	snap := g.Snapshot()
	snap.Terms[fox] = 100 // the copy is detached

	other := New(nil)
	other.Restore(g.Snapshot())
	assert.Equal(t, []int64{2, 5}, other.Query(lookup(fox)))
}

func TestHandler_Commands(t *testing.T) {
	h := NewHandler(New(nil))
	ctx := context.Background()

	publish, err := (&proto.PublishRequest{
		ServerID: 1,
		Delta:    proto.StatsDelta{CollectionSizeChange: 1, Changes: []proto.DFChange{{Key: fox, Increment: 3}}},
	}).Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte("Y"), h.ServeFrame(ctx, publish))

	query, err := proto.NewStatsQuery([]proto.TermKey{fox}).Encode()
	require.NoError(t, err)
	values, err := proto.DecodeStatsValues(h.ServeFrame(ctx, query), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, values)

	assert.Equal(t, "Eunknown statistics server sub command", string(h.ServeFrame(ctx, []byte{'Q', 'Z'})))
	assert.Equal(t, byte('E'), h.ServeFrame(ctx, []byte{'X'})[0])
}

func TestHandler_MalformedPublishChangesNothing(t *testing.T) {
	stats := New(nil)
	h := NewHandler(stats)
	ctx := context.Background()

	payload, err := (&proto.PublishRequest{
		ServerID: 1,
		Delta: proto.StatsDelta{
			CollectionSizeChange: 1,
			Changes: []proto.DFChange{
				{Key: fox, Increment: 3},
				{Key: stem("dog"), Increment: 1},
			},
		},
	}).Encode()
	require.NoError(t, err)

	reply := h.ServeFrame(ctx, payload[:len(payload)-4])
	assert.Equal(t, byte('E'), reply[0])
	assert.Equal(t, []int64{0, 0}, stats.Query(lookup(fox)))
}

func TestClient_OverTCP(t *testing.T) {
	stats := New(nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := wire.NewServer("statistics", NewHandler(stats))
	go srv.ServeListener(ln)
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := NewClient(ln.Addr().String())

	delta := proto.StatsDelta{CollectionSizeChange: 3}
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		delta.Changes = append(delta.Changes, proto.DFChange{Key: stem(v), Increment: 2})
	}
	require.NoError(t, client.Publish(ctx, 4, delta, 2))

	dfs, n, err := client.Lookup(ctx, []proto.TermKey{stem("a"), stem("e"), stem("z")})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2, 0}, dfs)
	assert.Equal(t, int64(3), n)

	require.NoError(t, client.Publish(ctx, 4, delta.Negate(), 2))
	dfs, n, err = client.Lookup(ctx, []proto.TermKey{stem("a")})
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, dfs)
	assert.Equal(t, int64(0), n)
}

func TestClient_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, _, err = NewClient(addr).Lookup(context.Background(), []proto.TermKey{fox})
	require.Error(t, err)
	assert.False(t, apperrors.IsRemote(err))
}
