package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Route is an extra handler mounted next to /metrics, typically the health
// probes of a TCP-only service.
type Route struct {
	Pattern string
	Handler http.Handler
}

// StartServer serves /metrics and routes on port in the background. A
// non-positive port disables the server and returns a no-op shutdown.
func StartServer(port int, service string, routes ...Route) (shutdown func(context.Context) error) {
	if port <= 0 {
		return func(context.Context) error { return nil }
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	log := slog.Default().With("component", "metrics-server", "service", service)
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		log.Error("metrics server disabled", "error", err)
		return func(context.Context) error { return nil }
	}
	go func() {
		log.Info("metrics server listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
