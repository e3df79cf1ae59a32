package router

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/coordinator"
	gwhandler "github.com/Adithya-Monish-Kumar-K/federated-search/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/auth/apikey"
	gwmw "github.com/Adithya-Monish-Kumar-K/federated-search/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

type staticEvaluator struct{}

func (staticEvaluator) Evaluate(context.Context, coordinator.Query) (*coordinator.Result, error) {
	return &coordinator.Result{Rows: []proto.ResultRow{{DocID: 1, Weight: 1}}, Errors: []string{}}, nil
}

func TestRouter(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	srv := httptest.NewServer(New(Deps{
		Handler: gwhandler.New(gwhandler.Config{}, staticEvaluator{}),
		Health:  health.NewChecker(),
		Metrics: m,
		Limiter: gwmw.NewClientLimiter(100, 100),
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/query?q=fox")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(pkgmw.RequestIDHeader))

	resp, err = http.Post(srv.URL+"/query?q=fox", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/documents", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/query", "200")))
}

type countingIngester struct{ calls atomic.Int32 }

func (c *countingIngester) Ingest(context.Context, *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	c.calls.Add(1)
	return &ingestion.IngestResponse{DocNo: 1, Status: "PUBLISHED"}, nil
}

type oneKey string

func (k oneKey) Validate(_ context.Context, raw string) (*apikey.KeyInfo, error) {
	if raw != string(k) {
		return nil, apikey.ErrInvalidKey
	}
	return &apikey.KeyInfo{ID: 1, Name: "writer"}, nil
}

func TestRouter_WriteRoutesNeedAPIKey(t *testing.T) {
	ing := &countingIngester{}
	srv := httptest.NewServer(New(Deps{
		Handler: gwhandler.New(gwhandler.Config{}, staticEvaluator{}),
		Ingest:  ingesthandler.New(ing),
		Keys:    oneKey("s3cret"),
	}))
	defer srv.Close()

	post := func(path, key string) int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(`{"title":"A","body":"alpha"}`))
		require.NoError(t, err)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, post("/api/v1/documents", ""))
	assert.Equal(t, http.StatusUnauthorized, post("/api/v1/documents", "wrong"))
	assert.Equal(t, int32(0), ing.calls.Load())
	assert.Equal(t, http.StatusAccepted, post("/api/v1/documents", "s3cret"))
	assert.Equal(t, int32(1), ing.calls.Load())

	assert.Equal(t, http.StatusUnauthorized, post("/api/v1/cache/invalidate", ""))
	// Authorised, but no cache is configured.
	assert.Equal(t, http.StatusServiceUnavailable, post("/api/v1/cache/invalidate", "s3cret"))

	resp, err := http.Get(srv.URL + "/query?q=fox")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_WriteRoutesOpenWithoutKeys(t *testing.T) {
	ing := &countingIngester{}
	srv := httptest.NewServer(New(Deps{
		Handler: gwhandler.New(gwhandler.Config{}, staticEvaluator{}),
		Ingest:  ingesthandler.New(ing),
	}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json", strings.NewReader(`{"title":"A","body":"alpha"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, int32(1), ing.calls.Load())
}
