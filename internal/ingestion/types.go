// Package ingestion defines the request/response types and Kafka event schemas
// of the document ingestion pipeline that feeds the shard nodes.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/engine"
)

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
type IngestRequest struct {
	Title          string   `json:"title"`
	ParaTitle      string   `json:"paratitle,omitempty"`
	Body           string   `json:"body"`
	Links          []string `json:"links,omitempty"`
	Features       []string `json:"features,omitempty"`
	Prominence     float64  `json:"prominence,omitempty"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	DocNo      uint32 `json:"docno"`
	Status     string `json:"status"`
	ShardIndex int    `json:"shard_index"`
}

// IngestEvent is the Kafka message payload produced after a document has
// been registered and given its document number. Every shard node reads the
// topic and indexes the events addressed to its ShardIndex.
type IngestEvent struct {
	ShardIndex int             `json:"shard_index"`
	Document   engine.Document `json:"document"`
	IngestedAt time.Time       `json:"ingested_at"`
}

// InvalidationEvent announces that cached query results may be stale.
type InvalidationEvent struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Document converts the request into the engine document stored under docno.
func (r *IngestRequest) Document(docno uint32) engine.Document {
	return engine.Document{
		DocNo:      docno,
		Title:      r.Title,
		ParaTitle:  r.ParaTitle,
		Body:       r.Body,
		Links:      r.Links,
		Features:   r.Features,
		Prominence: r.Prominence,
	}
}

// AssignShard maps a document number onto one of numShards partitions.
func AssignShard(docno uint32, numShards int) int {
	if numShards <= 0 {
		return 0
	}
	return int(docno % uint32(numShards))
}
