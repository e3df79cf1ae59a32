// Package router wires the gateway routes and applies the middleware chain.
package router

import (
	"net/http"
	"time"

	gwhandler "github.com/Adithya-Monish-Kumar-K/federated-search/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/federated-search/internal/gateway/middleware"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/middleware"
)

// Deps are the pieces the router mounts. Everything except Handler is
// optional.
type Deps struct {
	Handler        *gwhandler.Handler
	Ingest         *ingesthandler.Handler
	Health         *health.Checker
	Metrics        *metrics.Metrics
	Limiter        *gwmw.ClientLimiter
	Keys           gwmw.KeyValidator
	RequestTimeout time.Duration
}

// New builds the gateway HTTP handler.
//
// Route table:
//
//	GET  /query                     evaluate a query over all shards
//	GET  /dym                       did-you-mean proposals
//	GET  /analyze                   query terms and related terms
//	GET  /api/v1/cache/stats        result cache counters
//	POST /api/v1/cache/invalidate   flush the result cache
//	POST /api/v1/documents          register and publish a document
//	GET  /health/live, /health/ready
//
// With Keys set, the two POST routes need a valid API key.
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → RateLimit → Timeout → mux
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	h := d.Handler

	mux.HandleFunc("GET /query", h.Query)
	mux.HandleFunc("GET /dym", h.Dym)
	mux.HandleFunc("GET /analyze", h.Analyze)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	guard := func(h http.HandlerFunc) http.Handler { return h }
	if d.Keys != nil {
		auth := gwmw.Auth(d.Keys)
		guard = func(h http.HandlerFunc) http.Handler { return auth(h) }
	}
	mux.Handle("POST /api/v1/cache/invalidate", guard(h.CacheInvalidate))
	if d.Ingest != nil {
		mux.Handle("POST /api/v1/documents", guard(d.Ingest.Ingest))
	}
	if d.Health != nil {
		mux.Handle("GET /health/live", d.Health.LiveHandler())
		mux.Handle("GET /health/ready", d.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if d.RequestTimeout > 0 {
		chain = pkgmw.Timeout(d.RequestTimeout)(chain)
	}
	if d.Limiter != nil {
		chain = gwmw.RateLimit(d.Limiter)(chain)
	}
	chain = gwmw.CORS(gwmw.DefaultCORSConfig())(chain)
	if d.Metrics != nil {
		chain = pkgmw.Metrics(d.Metrics)(chain)
	}
	return pkgmw.RequestID(chain)
}
