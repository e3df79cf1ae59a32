package analytics

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

var errBadTop = errors.New("top must be a non-negative integer")

// Handler exposes the aggregated totals over HTTP.
type Handler struct {
	aggregator *Aggregator
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{aggregator: aggregator}
}

// Stats serves GET /api/v1/analytics. The optional top parameter trims the
// top and zero-result query lists.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top, err := parseTop(r.URL.Query().Get("top"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	stats := h.aggregator.Stats()
	if top >= 0 {
		stats.TopQueries = truncate(stats.TopQueries, top)
		stats.ZeroResultQueries = truncate(stats.ZeroResultQueries, top)
	}
	writeJSON(w, http.StatusOK, stats)
}

// parseTop returns -1 when no limit was given.
func parseTop(v string) (int, error) {
	if v == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errBadTop
	}
	return n, nil
}

func truncate(qs []QueryCount, n int) []QueryCount {
	if len(qs) > n {
		return qs[:n]
	}
	return qs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write analytics response", "error", err)
	}
}
