package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
)

const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalQueries      int64            `json:"total_queries"`
	FailedQueries     int64            `json:"failed_queries"`
	PartialQueries    int64            `json:"partial_queries"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	DocsIngested      int64            `json:"docs_ingested"`
	DocsPerShard      map[int]int64    `json:"docs_per_shard"`
	QueriesByScheme   map[string]int64 `json:"queries_by_scheme"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals of the analytics topic. It is safe for
// concurrent use.
type Aggregator struct {
	mu                sync.RWMutex
	totals            AggregatedStats
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		totals: AggregatedStats{
			DocsPerShard:    make(map[int]int64),
			QueriesByScheme: make(map[string]int64),
		},
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent is the kafka.MessageHandler of the analytics topic.
// Undecodable events are logged and skipped.
func (a *Aggregator) HandleEvent(_ context.Context, _ []byte, value []byte) error {
	head, err := kafka.DecodeJSON[envelope](value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	switch head.Type {
	case EventQuery:
		event, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			a.logger.Error("failed to decode query event", "error", err)
			return nil
		}
		a.RecordQuery(event)
	case EventIngest:
		event, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			a.logger.Error("failed to decode ingest event", "error", err)
			return nil
		}
		a.RecordIngest(event)
	default:
		a.logger.Warn("unknown analytics event type", "type", head.Type)
	}
	return nil
}

func (a *Aggregator) RecordQuery(event QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := &a.totals
	t.TotalQueries++
	t.QueriesByScheme[event.Scheme]++
	if event.CacheHit {
		t.CacheHits++
	} else {
		t.CacheMisses++
	}
	switch {
	case event.Failed:
		t.FailedQueries++
	case event.ShardErrors > 0:
		t.PartialQueries++
	}
	if event.Rows == 0 && !event.Failed {
		t.ZeroResultCount++
		a.zeroResultQueries[event.Query]++
	}
	a.queryCounts[event.Query]++

	if len(a.latencies) >= maxLatencySamples {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
}

func (a *Aggregator) RecordIngest(event IngestEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.DocsIngested++
	a.totals.DocsPerShard[event.ShardIndex]++
}

// Restore seeds the counters from a saved snapshot.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.TotalQueries = s.TotalQueries
	a.totals.FailedQueries = s.FailedQueries
	a.totals.PartialQueries = s.PartialQueries
	a.totals.ZeroResultCount = s.ZeroResultCount
	a.totals.CacheHits = s.CacheHits
	a.totals.CacheMisses = s.CacheMisses
	a.totals.DocsIngested = s.DocsIngested
	for k, v := range s.DocsPerShard {
		a.totals.DocsPerShard[k] = v
	}
	for k, v := range s.QueriesByScheme {
		a.totals.QueriesByScheme[k] = v
	}
	for _, qc := range s.TopQueries {
		a.queryCounts[qc.Query] = qc.Count
	}
	for _, qc := range s.ZeroResultQueries {
		a.zeroResultQueries[qc.Query] = qc.Count
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.totals
	stats.DocsPerShard = make(map[int]int64, len(a.totals.DocsPerShard))
	for k, v := range a.totals.DocsPerShard {
		stats.DocsPerShard[k] = v
	}
	stats.QueriesByScheme = make(map[string]int64, len(a.totals.QueriesByScheme))
	for k, v := range a.totals.QueriesByScheme {
		stats.QueriesByScheme[k] = v
	}

	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries. Equal counts are ordered by query.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(x, y QueryCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Query, y.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
