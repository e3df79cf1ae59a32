// Package statistics holds the global ranking statistics of the federated
// collection: the document frequency of every (type,value) term and the
// total collection size. Shards publish deltas to it; the coordinator looks
// values up before every query so all shards rank against the same numbers.
package statistics

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

// GlobalStats is the single owner of the counters. Publish and Query are
// serialized, so each is atomic with respect to the other.
type GlobalStats struct {
	mu             sync.Mutex
	df             map[proto.TermKey]int64
	collectionSize int64
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	CollectionSize int64
	Terms          map[proto.TermKey]int64
}

// New creates empty statistics. m may be nil.
func New(m *metrics.Metrics) *GlobalStats {
	return &GlobalStats{
		df:      make(map[proto.TermKey]int64),
		metrics: m,
		logger:  slog.Default().With("component", "global-stats"),
	}
}

// Publish applies a decoded delta. Counters are not clamped and may go
// negative when deltas are inconsistent.
func (g *GlobalStats) Publish(serverID uint16, delta proto.StatsDelta) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.collectionSize += delta.CollectionSizeChange
	for _, c := range delta.Changes {
		g.df[c.Key] += c.Increment
	}

	if g.metrics != nil {
		g.metrics.StatsPublishTotal.WithLabelValues(strconv.Itoa(int(serverID))).Inc()
		g.metrics.StatsCollectionSize.Set(float64(g.collectionSize))
		g.metrics.StatsTrackedTerms.Set(float64(len(g.df)))
	}
	g.logger.Debug("delta applied",
		"server_id", serverID,
		"collection_size_change", delta.CollectionSizeChange,
		"df_changes", len(delta.Changes),
	)
}

// Query answers each lookup in order. Unknown terms have frequency 0.
func (g *GlobalStats) Query(lookups []proto.StatsLookup) []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	values := make([]int64, len(lookups))
	for i, l := range lookups {
		if l.CollectionSize {
			values[i] = g.collectionSize
		} else {
			values[i] = g.df[l.Key]
		}
	}
	if g.metrics != nil {
		g.metrics.StatsLookupsTotal.Add(float64(len(lookups)))
	}
	return values
}

// Snapshot copies the counters.
func (g *GlobalStats) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	terms := make(map[proto.TermKey]int64, len(g.df))
	for k, v := range g.df {
		terms[k] = v
	}
	return Snapshot{CollectionSize: g.collectionSize, Terms: terms}
}

// Restore replaces the counters with s.
func (g *GlobalStats) Restore(s Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.df = make(map[proto.TermKey]int64, len(s.Terms))
	for k, v := range s.Terms {
		g.df[k] = v
	}
	g.collectionSize = s.CollectionSize
	if g.metrics != nil {
		g.metrics.StatsCollectionSize.Set(float64(g.collectionSize))
		g.metrics.StatsTrackedTerms.Set(float64(len(g.df)))
	}
	g.logger.Info("statistics restored", "collection_size", s.CollectionSize, "terms", len(s.Terms))
}
