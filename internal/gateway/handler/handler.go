// Package handler implements the gateway's HTTP endpoints: query evaluation
// over the shard federation, did-you-mean proposals, query analysis and
// result cache administration.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/coordinator"
	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

// Evaluator runs a query against the federation.
type Evaluator interface {
	Evaluate(ctx context.Context, q coordinator.Query) (*coordinator.Result, error)
}

// Proposer asks the did-you-mean service for rewrites.
type Proposer interface {
	Propose(ctx context.Context, text string, n uint16) ([]string, error)
}

// Analyzer asks the analyzer service for terms and related terms.
type Analyzer interface {
	Analyze(ctx context.Context, text string, n uint16) (*proto.AnalyzeReply, error)
}

// QueryTracker receives one analytics event per evaluation.
type QueryTracker interface {
	TrackQuery(event analytics.QueryEvent)
}

// Config holds the query defaults.
type Config struct {
	DefaultScheme   string
	DefaultPageSize int
	MaxPageSize     int
}

type Handler struct {
	cfg      Config
	eval     Evaluator
	cache    *coordinator.ResultCache
	dym      Proposer
	analyzer Analyzer
	tracker  QueryTracker
	logger   *slog.Logger
}

type Option func(*Handler)

// WithCache serves repeated queries from the result cache.
func WithCache(c *coordinator.ResultCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithProposer(p Proposer) Option {
	return func(h *Handler) { h.dym = p }
}

func WithAnalyzer(a Analyzer) Option {
	return func(h *Handler) { h.analyzer = a }
}

func WithTracker(t QueryTracker) Option {
	return func(h *Handler) { h.tracker = t }
}

func New(cfg Config, eval Evaluator, opts ...Option) *Handler {
	if cfg.DefaultScheme == "" {
		cfg.DefaultScheme = "BM25"
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 1000
	}
	h := &Handler{
		cfg:    cfg,
		eval:   eval,
		logger: slog.Default().With("component", "gateway-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// QueryResponse is the body of GET /query.
type QueryResponse struct {
	Query     string             `json:"query"`
	Scheme    string             `json:"scheme"`
	FirstRank int                `json:"first_rank"`
	PageSize  int                `json:"page_size"`
	Rows      []proto.ResultRow  `json:"rows"`
	Links     []proto.WeightedID `json:"links,omitempty"`
	Errors    []string           `json:"errors"`
	Cached    bool               `json:"cached"`
	TookMs    int64              `json:"took_ms"`
}

// Query serves GET /query?q=&i=&n=&s=&d=&m=. Malformed parameters are a 400;
// evaluation failures are reported in the errors list of a 200.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	q, err := h.parseQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, cached, err := h.evaluate(ctx, q)
	if err != nil && errors.Is(err, apperrors.ErrInvalidInput) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.FromContext(ctx).Warn("query evaluation failed", "query", q.Text, "error", err)
	}

	resp := QueryResponse{
		Query:     q.Text,
		Scheme:    q.Scheme,
		FirstRank: q.FirstRank,
		PageSize:  q.MaxRanks,
		Rows:      res.Rows,
		Links:     res.Links,
		Errors:    res.Errors,
		Cached:    cached,
		TookMs:    time.Since(start).Milliseconds(),
	}
	if h.tracker != nil {
		h.tracker.TrackQuery(analytics.QueryEvent{
			Query:       q.Text,
			Scheme:      q.Scheme,
			FirstRank:   q.FirstRank,
			PageSize:    q.MaxRanks,
			Rows:        len(res.Rows),
			Links:       len(res.Links),
			ShardErrors: len(res.Errors),
			Failed:      err != nil,
			CacheHit:    cached,
			LatencyMs:   resp.TookMs,
			Timestamp:   start.UTC(),
			RequestID:   logger.RequestID(ctx),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) evaluate(ctx context.Context, q coordinator.Query) (*coordinator.Result, bool, error) {
	if h.cache == nil {
		res, err := h.eval.Evaluate(ctx, q)
		return res, false, err
	}
	return h.cache.GetOrEvaluate(ctx, q, func(ctx context.Context) (*coordinator.Result, error) {
		return h.eval.Evaluate(ctx, q)
	})
}

func (h *Handler) parseQuery(r *http.Request) (coordinator.Query, error) {
	params := r.URL.Query()
	q := coordinator.Query{
		Text:     strings.TrimSpace(params.Get("q")),
		Scheme:   params.Get("s"),
		MaxRanks: h.cfg.DefaultPageSize,
	}
	if q.Scheme == "" {
		q.Scheme = h.cfg.DefaultScheme
	}
	var err error
	if q.FirstRank, err = intParam(params.Get("i"), 0); err != nil {
		return q, fmt.Errorf("parameter i: %w", err)
	}
	if q.MaxRanks, err = intParam(params.Get("n"), h.cfg.DefaultPageSize); err != nil {
		return q, fmt.Errorf("parameter n: %w", err)
	}
	if q.MaxRanks > h.cfg.MaxPageSize {
		return q, fmt.Errorf("parameter n: at most %d", h.cfg.MaxPageSize)
	}
	for _, d := range params["d"] {
		docno, err := strconv.ParseUint(d, 10, 32)
		if err != nil {
			return q, fmt.Errorf("parameter d: %q is not a document number", d)
		}
		q.RestrictDocs = append(q.RestrictDocs, uint32(docno))
	}
	q.Debug = flagParam(params.Get("m"))
	return q, nil
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", v)
	}
	return n, nil
}

func flagParam(v string) bool {
	switch strings.ToLower(v) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// Dym serves GET /dym?q=&n=.
func (h *Handler) Dym(w http.ResponseWriter, r *http.Request) {
	if h.dym == nil {
		h.writeError(w, http.StatusServiceUnavailable, "did-you-mean service not configured")
		return
	}
	n, err := intParam(r.URL.Query().Get("n"), 0)
	if err != nil || n > 65535 {
		h.writeError(w, http.StatusBadRequest, "parameter n: not a valid count")
		return
	}
	proposals, err := h.dym.Propose(r.Context(), r.URL.Query().Get("q"), uint16(n))
	if err != nil {
		logger.FromContext(r.Context()).Warn("did-you-mean failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(upstream(err)), err.Error())
		return
	}
	if proposals == nil {
		proposals = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}

// Analyze serves GET /analyze?q=&n=.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "analyzer service not configured")
		return
	}
	n, err := intParam(r.URL.Query().Get("n"), 0)
	if err != nil || n > 65535 {
		h.writeError(w, http.StatusBadRequest, "parameter n: not a valid count")
		return
	}
	reply, err := h.analyzer.Analyze(r.Context(), r.URL.Query().Get("q"), uint16(n))
	if err != nil {
		logger.FromContext(r.Context()).Warn("analyze failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(upstream(err)), err.Error())
		return
	}
	terms, related := reply.Terms, reply.Related
	if terms == nil {
		terms = []proto.AnalyzedTerm{}
	}
	if related == nil {
		related = []proto.RelatedTerm{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"terms": terms, "related": related})
}

// upstream maps a failed call to an auxiliary service onto a gateway error.
func upstream(err error) error {
	if apperrors.IsRemote(err) || errors.Is(err, apperrors.ErrProtocol) {
		return fmt.Errorf("%w: %w", apperrors.ErrProtocol, err)
	}
	if errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ErrTimeout
	}
	return fmt.Errorf("%w: %w", apperrors.ErrShardUnavailable, err)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	hits, misses := h.cache.Stats()
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  true,
		"hits":     hits,
		"misses":   misses,
		"hit_rate": ratio,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "result cache not enabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
