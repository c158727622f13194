package constants

import "time"

const (
	ServiceName    = "aggregator-service"
	ServiceVersion = "1.0.0"
)

// Event listing bounds enforced at the API boundary.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Kafka ingest source tuning.
const (
	KafkaMinBytes     = 10e3
	KafkaMaxBytes     = 10e6
	KafkaFetchBackoff = time.Second
)

// Shutdown grace period for the consumer loop.
const ConsumerStopTimeout = 5 * time.Second
