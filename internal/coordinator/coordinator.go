// Package coordinator evaluates a user query against the federation. It
// resolves the query into terms, takes one snapshot of the global
// statistics, sends the same envelope to every shard concurrently and
// merges the ranked answers into one window of the global order.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/tracing"
)

// StatsSource returns the document frequency of every key and the
// collection size, all from one snapshot.
type StatsSource interface {
	Lookup(ctx context.Context, keys []proto.TermKey) ([]int64, int64, error)
}

// Options tune the fan-out.
type Options struct {
	// PerShardTimeout bounds every shard request. Zero waits forever.
	PerShardTimeout time.Duration
	StatsTimeout    time.Duration
	// MaxConcurrentShards limits in-flight shard requests. Zero is unbounded.
	MaxConcurrentShards int
	// Trace logs the span tree of every evaluation.
	Trace bool
}

// Query is one user query.
type Query struct {
	Text         string
	Scheme       string
	FirstRank    int
	MaxRanks     int
	RestrictDocs []uint32
	Debug        bool
}

// Result is the answer to a query. Errors lists one entry per failed shard,
// or the single reason the whole evaluation failed.
type Result struct {
	Rows   []proto.ResultRow  `json:"rows"`
	Links  []proto.WeightedID `json:"links,omitempty"`
	Errors []string           `json:"errors"`
}

// Coordinator fans queries out to the shard nodes.
type Coordinator struct {
	resolver TermResolver
	stats    StatsSource
	shards   []ShardClient
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a coordinator. m may be nil.
func New(resolver TermResolver, stats StatsSource, shards []ShardClient, opts Options, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		resolver: resolver,
		stats:    stats,
		shards:   shards,
		opts:     opts,
		metrics:  m,
		logger:   slog.Default().With("component", "coordinator"),
	}
}

// Shards returns the shard clients in configuration order.
func (c *Coordinator) Shards() []ShardClient {
	return c.shards
}

type shardOutcome struct {
	rows []proto.ResultRow
	err  error
}

// Evaluate runs q and always returns a result. The error is non-nil when
// nothing could be evaluated: the analyzer or the statistics server failed,
// the query was invalid, or every shard failed.
func (c *Coordinator) Evaluate(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	ctx, root := tracing.StartSpan(ctx, "evaluate", logger.RequestID(ctx))
	root.SetAttr("scheme", q.Scheme)
	defer func() {
		root.End()
		if c.opts.Trace {
			root.Log(c.logger)
		}
	}()

	res := &Result{Rows: []proto.ResultRow{}, Errors: []string{}}
	fail := func(outcome string, err error) (*Result, error) {
		res.Errors = append(res.Errors, err.Error())
		c.observe(q.Scheme, outcome, start, 0)
		return res, err
	}

	if q.FirstRank < 0 || q.MaxRanks < 0 || q.FirstRank+q.MaxRanks > math.MaxUint16 {
		return fail("invalid", fmt.Errorf("%w: rank window [%d,+%d) out of range", apperrors.ErrInvalidInput, q.FirstRank, q.MaxRanks))
	}
	if len(c.shards) == 0 {
		return fail("failed", fmt.Errorf("%w: no storage servers configured", apperrors.ErrShardUnavailable))
	}

	_, span := tracing.StartChildSpan(ctx, "analyze")
	terms, err := c.resolver.Resolve(ctx, q.Text)
	span.SetAttr("terms", len(terms))
	span.End()
	if err != nil {
		return fail("failed", fmt.Errorf("query analyzer failed: %w", err))
	}
	if len(terms) == 0 {
		c.observe(q.Scheme, "empty", start, 0)
		return res, nil
	}

	_, span = tracing.StartChildSpan(ctx, "statistics")
	dfs, collectionSize, err := c.lookup(ctx, terms)
	span.End()
	if err != nil {
		err = fmt.Errorf("query statistic server failed: %w", err)
		res.Errors = append(res.Errors, err.Error())
		c.observe(q.Scheme, "failed", start, 0)
		return res, fmt.Errorf("%w: %w", apperrors.ErrStatsUnavailable, err)
	}
	for i := range terms {
		terms[i].DocumentFrequency = dfs[i]
	}

	env := &proto.QueryEnvelope{
		Scheme:         q.Scheme,
		CollectionSize: collectionSize,
		FirstRank:      0,
		MaxRanks:       uint16(q.FirstRank + q.MaxRanks),
		Terms:          terms,
		Debug:          q.Debug,
	}
	if env.Scheme == "" {
		env.Scheme = proto.DefaultScheme
	}
	if len(q.RestrictDocs) > 0 {
		env.RestrictDocs = roaring.BitmapOf(q.RestrictDocs...)
	}
	payload, err := env.Encode()
	if err != nil {
		return fail("invalid", fmt.Errorf("encoding query: %w", err))
	}

	fanCtx, span := tracing.StartChildSpan(ctx, "fan-out")
	outcomes := c.fanOut(fanCtx, payload, proto.RowKindOf(env.Scheme))
	span.End()

	lists := make([][]proto.ResultRow, len(outcomes))
	var merr *multierror.Error
	for i, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, shardErrorString(c.shards[i].Addr(), o.err))
			merr = multierror.Append(merr, fmt.Errorf("shard %s: %w", c.shards[i].Addr(), o.err))
			continue
		}
		lists[i] = o.rows
	}

	_, span = tracing.StartChildSpan(ctx, "merge")
	if proto.AggregatesLinks(env.Scheme) {
		ranks := Merge(lists, 0, q.FirstRank+q.MaxRanks)
		res.Links = AggregateLinks(ranks, q.FirstRank, q.MaxRanks)
		res.Rows = windowOf(ranks, q.FirstRank)
	} else {
		res.Rows = Merge(lists, q.FirstRank, q.MaxRanks)
	}
	span.SetAttr("rows", len(res.Rows))
	span.End()

	if merr != nil && merr.Len() == len(c.shards) {
		c.observe(q.Scheme, "failed", start, 0)
		return res, fmt.Errorf("all %d storage servers failed: %w", len(c.shards), merr.ErrorOrNil())
	}
	outcome := "ok"
	if merr != nil {
		outcome = "partial"
	}
	c.observe(q.Scheme, outcome, start, len(res.Rows))
	return res, nil
}

func (c *Coordinator) lookup(ctx context.Context, terms []proto.Term) ([]int64, int64, error) {
	keys := make([]proto.TermKey, len(terms))
	for i, t := range terms {
		keys[i] = t.Key()
	}
	out := make(chan struct {
		dfs []int64
		n   int64
	}, 1)
	err := resilience.WithTimeout(ctx, c.opts.StatsTimeout, "statistics lookup", func(ctx context.Context) error {
		dfs, n, err := c.stats.Lookup(ctx, keys)
		if err != nil {
			return err
		}
		if len(dfs) != len(keys) {
			return apperrors.Protocolf("statistics reply has %d values for %d terms", len(dfs), len(keys))
		}
		out <- struct {
			dfs []int64
			n   int64
		}{dfs, n}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	v := <-out
	return v.dfs, v.n, nil
}

// fanOut queries every shard concurrently and waits for all of them. A
// failing shard never cancels the others.
func (c *Coordinator) fanOut(ctx context.Context, payload []byte, kind proto.RowKind) []shardOutcome {
	outcomes := make([]shardOutcome, len(c.shards))
	var g errgroup.Group
	if c.opts.MaxConcurrentShards > 0 {
		g.SetLimit(c.opts.MaxConcurrentShards)
	}
	for i, shard := range c.shards {
		g.Go(func() error {
			outcomes[i] = c.queryShard(ctx, i, shard, payload, kind)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (c *Coordinator) queryShard(ctx context.Context, i int, shard ShardClient, payload []byte, kind proto.RowKind) shardOutcome {
	ctx, span := tracing.StartChildSpan(ctx, "shard")
	span.SetAttr("addr", shard.Addr())
	defer span.End()

	start := time.Now()
	out := make(chan []proto.ResultRow, 1)
	err := resilience.WithTimeout(ctx, c.opts.PerShardTimeout, "storage server "+shard.Addr(), func(ctx context.Context) error {
		rows, err := shard.Query(ctx, payload, kind)
		if err != nil {
			return err
		}
		out <- rows
		return nil
	})

	label := strconv.Itoa(i)
	if c.metrics != nil {
		c.metrics.ShardRequestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		c.metrics.ShardRequestsTotal.WithLabelValues(label, shardOutcomeLabel(err)).Inc()
	}
	if err != nil {
		span.SetAttr("error", err.Error())
		c.logger.Warn("storage server query failed", "addr", shard.Addr(), "error", err)
		return shardOutcome{err: err}
	}
	rows := <-out
	span.SetAttr("rows", len(rows))
	return shardOutcome{rows: rows}
}

func (c *Coordinator) observe(scheme, outcome string, start time.Time, rows int) {
	if c.metrics == nil {
		return
	}
	c.metrics.QueryEvaluationsTotal.WithLabelValues(outcome).Inc()
	c.metrics.QueryLatency.WithLabelValues(scheme).Observe(time.Since(start).Seconds())
	if outcome == "ok" || outcome == "partial" {
		c.metrics.QueryRowsReturned.Observe(float64(rows))
	}
}

// shardErrorString renders a shard failure for the result. An `E` reply is
// passed through verbatim.
func shardErrorString(addr string, err error) string {
	var remote *apperrors.RemoteError
	switch {
	case errors.As(err, &remote):
		return remote.Message
	case errors.Is(err, apperrors.ErrProtocol):
		return fmt.Sprintf("protocol error storage %s query: %v", addr, err)
	default:
		return fmt.Sprintf("call of storage server %s failed: %v", addr, err)
	}
}

func shardOutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperrors.IsRemote(err):
		return "remote_error"
	case errors.Is(err, apperrors.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func windowOf(rows []proto.ResultRow, first int) []proto.ResultRow {
	if first >= len(rows) {
		return []proto.ResultRow{}
	}
	return rows[first:]
}
