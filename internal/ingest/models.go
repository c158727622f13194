package ingest

import "aggregator/internal/ledger"

type PublishResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	EventID    string `json:"event_id"`
	ReceivedAt string `json:"received_at"`
}

type EventListResponse struct {
	Topic  string          `json:"topic,omitempty"`
	Count  int             `json:"count"`
	Events []ledger.Record `json:"events"`
}

type ServiceInfo struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}
