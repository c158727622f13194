package config

import (
	"fmt"
)

func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", cfg.Server.Port)
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}

	if cfg.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}

	if cfg.Consumer.ProcessingLatency < 0 {
		return fmt.Errorf("consumer.processing_latency must not be negative")
	}

	if cfg.Broker.Enabled {
		if len(cfg.Broker.Kafka.Brokers) == 0 {
			return fmt.Errorf("broker.kafka.brokers is required when the broker source is enabled")
		}
		if cfg.Broker.Kafka.InputTopic == "" {
			return fmt.Errorf("broker.kafka.input_topic is required when the broker source is enabled")
		}
		if cfg.Broker.Kafka.GroupID == "" {
			return fmt.Errorf("broker.kafka.group_id is required when the broker source is enabled")
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RPS <= 0 {
			return fmt.Errorf("rate_limit.rps must be positive when rate limiting is enabled")
		}
		if cfg.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be positive when rate limiting is enabled")
		}
	}

	return nil
}
