// Package analytics publishes service events to Kafka through a batching,
// non-blocking collector. Events are keyed by org id so one org's stream
// lands on one partition in order.
package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventBuild       EventType = "segment_build"
	EventDelete      EventType = "document_delete"
	EventRateLimited EventType = "rate_limited"
)

// Event is anything the collector can publish. EventKey returns the Kafka
// partition key, the org id for every event the service emits.
type Event interface {
	EventKey() string
}

type SearchEvent struct {
	Type            EventType `json:"type"`
	OrgID           string    `json:"org_id"`
	Query           string    `json:"query"`
	SegmentsScanned int       `json:"segments_scanned"`
	Returned        int       `json:"returned"`
	TopScore        float64   `json:"top_score"`
	LatencyMs       int64     `json:"latency_ms"`
	CacheHit        bool      `json:"cache_hit"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id"`
}

func (e SearchEvent) EventKey() string { return e.OrgID }

type BuildEvent struct {
	Type        EventType `json:"type"`
	OrgID       string    `json:"org_id"`
	SegmentName string    `json:"segment_name"`
	Docs        uint32    `json:"docs"`
	Postings    uint64    `json:"postings"`
	Skipped     uint64    `json:"skipped"`
	LatencyMs   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BuildEvent) EventKey() string { return e.OrgID }

type DeleteEvent struct {
	Type      EventType `json:"type"`
	OrgID     string    `json:"org_id"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

func (e DeleteEvent) EventKey() string { return e.OrgID }

// RateLimitEvent records a request rejected by the per-org budget.
type RateLimitEvent struct {
	Type      EventType `json:"type"`
	OrgID     string    `json:"org_id"`
	Endpoint  string    `json:"endpoint"`
	Cost      int       `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
}

func (e RateLimitEvent) EventKey() string { return e.OrgID }
