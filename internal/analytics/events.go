// Package analytics collects query and ingestion events from the gateway and
// the ingestion service, and aggregates them into usage statistics.
package analytics

import "time"

type EventType string

const (
	EventQuery  EventType = "query"
	EventIngest EventType = "ingest"
)

// QueryEvent describes one gateway evaluation.
type QueryEvent struct {
	Type        EventType `json:"type"`
	Query       string    `json:"query"`
	Scheme      string    `json:"scheme"`
	FirstRank   int       `json:"first_rank"`
	PageSize    int       `json:"page_size"`
	Rows        int       `json:"rows"`
	Links       int       `json:"links"`
	ShardErrors int       `json:"shard_errors"`
	Failed      bool      `json:"failed"`
	CacheHit    bool      `json:"cache_hit"`
	LatencyMs   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

// IngestEvent describes one registered document.
type IngestEvent struct {
	Type       EventType `json:"type"`
	DocNo      uint32    `json:"docno"`
	ShardIndex int       `json:"shard_index"`
	Timestamp  time.Time `json:"timestamp"`
}

type envelope struct {
	Type EventType `json:"type"`
}
