package ledger

// Record is the persisted form of an admitted event. Records are created
// exactly once per (topic, event_id), never mutated and never deleted outside
// an administrative Clear.
type Record struct {
	Topic       string                 `json:"topic"`
	EventID     string                 `json:"event_id"`
	Timestamp   string                 `json:"timestamp"`
	Source      string                 `json:"source"`
	Payload     map[string]interface{} `json:"payload"`
	ProcessedAt string                 `json:"processed_at"`
}

// Counts reports aggregate ledger sizes for diagnostics.
type Counts struct {
	Total      int `json:"total"`
	TopicCount int `json:"topic_count"`
}
