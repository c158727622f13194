package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout_seconds: 15
  write_timeout_seconds: 15
logging:
  level: debug
ledger:
  path: /tmp/test-ledger.db
consumer:
  processing_latency: 25ms
  breaker:
    enabled: true
    timeout: 30s
broker:
  enabled: true
  kafka:
    brokers:
      - localhost:9092
    group_id: aggregator
    input_topic: raw_events
rate_limit:
  enabled: true
  rps: 50
  burst: 100
admin:
  enable_reset: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/test-ledger.db", cfg.Ledger.Path)
	assert.Equal(t, 25*time.Millisecond, cfg.Consumer.ProcessingLatency)
	assert.True(t, cfg.Consumer.Breaker.Enabled)
	assert.True(t, cfg.Broker.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "raw_events", cfg.Broker.Kafka.InputTopic)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.Admin.EnableReset)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/dedup_ledger.db", cfg.Ledger.Path)
	assert.Equal(t, 10*time.Millisecond, cfg.Consumer.ProcessingLatency)
	assert.False(t, cfg.Broker.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080},
			Logging: LoggingConfig{Level: "info"},
			Ledger:  LedgerConfig{Path: "data/ledger.db"},
		}
	}

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, Validate(cfg))

	cfg = base()
	cfg.Logging.Level = "verbose"
	assert.Error(t, Validate(cfg))

	cfg = base()
	cfg.Ledger.Path = ""
	assert.Error(t, Validate(cfg))

	cfg = base()
	cfg.Broker.Enabled = true
	assert.Error(t, Validate(cfg), "enabled broker requires brokers and topic")

	cfg = base()
	cfg.RateLimit.Enabled = true
	assert.Error(t, Validate(cfg), "enabled rate limit requires positive rps")

	assert.NoError(t, Validate(base()))
}
