// Package validator checks ingestion requests field by field.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

const (
	maxBodyLength  = 1048576
	maxLinks       = 1000
	maxFeatures    = 1000
	maxKeyLength   = 255
	maxTitleLength = 1024
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest enforces the limits a document must meet to be
// indexed and carried in shard replies.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		errs["title"] = "title is required"
	case len(title) > maxTitleLength:
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if len(req.ParaTitle) > proto.MaxStringLen {
		errs["paratitle"] = fmt.Sprintf("paratitle must be at most %d bytes", proto.MaxStringLen)
	}
	body := strings.TrimSpace(req.Body)
	switch {
	case body == "":
		errs["body"] = "body is required and must not be empty"
	case len(body) > maxBodyLength:
		errs["body"] = fmt.Sprintf("body must be at most %d characters", maxBodyLength)
	}
	if msg := checkIDs(req.Links, maxLinks); msg != "" {
		errs["links"] = msg
	}
	if msg := checkIDs(req.Features, maxFeatures); msg != "" {
		errs["features"] = msg
	}
	if req.Prominence < 0 {
		errs["prominence"] = "prominence must not be negative"
	}
	if len(req.IdempotencyKey) > maxKeyLength {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxKeyLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkIDs(ids []string, limit int) string {
	if len(ids) > limit {
		return fmt.Sprintf("at most %d entries allowed", limit)
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return "entries must not be empty"
		}
		if len(id) > proto.MaxStringLen {
			return fmt.Sprintf("entries must be at most %d bytes", proto.MaxStringLen)
		}
	}
	return ""
}
