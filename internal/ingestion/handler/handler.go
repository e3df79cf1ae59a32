// Package handler serves the document ingestion endpoint.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
)

const maxRequestBytes = 2 << 20

// Ingester registers and publishes a document.
type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

type Handler struct {
	ingester Ingester
}

func New(ingester Ingester) *Handler {
	return &Handler{ingester: ingester}
}

type errorBody struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Ingest serves POST /api/v1/documents. Accepted documents answer 202 with
// their number, shard and publication status.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	reqID := logger.RequestID(ctx)

	req, status, err := decode(w, r)
	if err != nil {
		respond(w, status, errorBody{Error: err.Error(), RequestID: reqID})
		return
	}
	if err := validator.ValidateIngestRequest(req); err != nil {
		body := errorBody{Error: "validation failed", RequestID: reqID}
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			body.Fields = verr.Fields
		} else {
			body.Error = err.Error()
		}
		respond(w, http.StatusBadRequest, body)
		return
	}

	resp, err := h.ingester.Ingest(ctx, req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "error", err, "status_code", status)
		respond(w, status, errorBody{Error: "ingestion failed", RequestID: reqID})
		return
	}
	log.Info("document ingested", "docno", resp.DocNo, "shard_index", resp.ShardIndex, "status", resp.Status)
	respond(w, http.StatusAccepted, resp)
}

func decode(w http.ResponseWriter, r *http.Request) (*ingestion.IngestRequest, int, error) {
	var req ingestion.IngestRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return &req, http.StatusOK, nil
	case errors.As(err, &tooLarge):
		return nil, http.StatusRequestEntityTooLarge, errors.New("request body too large")
	default:
		return nil, http.StatusBadRequest, errors.New("invalid JSON body")
	}
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
