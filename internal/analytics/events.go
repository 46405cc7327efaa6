package analytics

import "time"

type EventType string

const (
	EventSearch         EventType = "search"
	EventZeroResult     EventType = "zero_result"
	EventIndexDocument  EventType = "index_document"
	EventRemoveDocument EventType = "remove_document"
	EventRebuild        EventType = "rebuild"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Page      bool      `json:"page"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type IndexEvent struct {
	Type       EventType `json:"type"`
	DocumentID int64     `json:"document_id"`
	Status     string    `json:"status"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

type RebuildEvent struct {
	Type       EventType `json:"type"`
	Indexed    int64     `json:"indexed"`
	Skipped    int64     `json:"skipped"`
	Failed     int64     `json:"failed"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// eventKey picks the Kafka partition key for an event.
func eventKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return string(e.Type)
	case IndexEvent:
		return string(e.Type)
	case RebuildEvent:
		return string(e.Type)
	default:
		return "analytics"
	}
}
