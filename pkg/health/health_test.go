package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	up := TCPCheck(addr, time.Second)(context.Background())
	assert.Equal(t, StatusUp, up.Status)

	require.NoError(t, ln.Close())
	down := TCPCheck(addr, time.Second)(context.Background())
	assert.Equal(t, StatusDown, down.Status)
	assert.NotEmpty(t, down.Message)
}

func TestReadyHandler_OptionalFailureDegrades(t *testing.T) {
	c := NewChecker()
	c.Register("stats", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} })
	c.RegisterOptional("redis", PingCheck(func(context.Context) error { return errors.New("connection refused") }))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusDegraded, report.Components["redis"].Status)
	assert.Equal(t, "connection refused", report.Components["redis"].Message)
}

func TestReadyHandler_CriticalFailure(t *testing.T) {
	c := NewChecker()
	c.Register("shard-0", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })
	c.RegisterOptional("redis", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} })

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
