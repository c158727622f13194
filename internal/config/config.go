package config

import (
	"time"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

type ConsumerConfig struct {
	ProcessingLatency time.Duration `mapstructure:"processing_latency"`
	Breaker           BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinRequests uint32        `mapstructure:"min_requests"`
	FailureRate float64       `mapstructure:"failure_rate"`
}

type BrokerConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Kafka   KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	GroupID    string   `mapstructure:"group_id"`
	InputTopic string   `mapstructure:"input_topic"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type AdminConfig struct {
	EnableReset bool `mapstructure:"enable_reset"`
}
