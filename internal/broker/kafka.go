package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"aggregator/internal/config"
	"aggregator/internal/constants"
	"aggregator/internal/logger"
	"aggregator/pkg/models"
	"aggregator/pkg/retry"
)

// KafkaSource consumes producer events from a Kafka topic and feeds them
// into the same inbound queue the HTTP surface uses. Duplicate suppression
// stays with the ledger, so redelivered Kafka messages are harmless.
type KafkaSource struct {
	cfg    config.KafkaConfig
	sink   Sink
	reader *kafka.Reader
	logger logger.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, sink Sink, log logger.Logger) *KafkaSource {
	return &KafkaSource{
		cfg:    cfg,
		sink:   sink,
		logger: log,
	}
}

// Run consumes until ctx is cancelled. Malformed or schema-invalid messages
// are committed and skipped; fetch failures back off before the next
// attempt.
func (s *KafkaSource) Run(ctx context.Context) error {
	s.logger.Infow("Creating Kafka reader",
		"topic", s.cfg.InputTopic,
		"brokers", s.cfg.Brokers,
		"group_id", s.cfg.GroupID,
	)

	s.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		GroupID:  s.cfg.GroupID,
		Topic:    s.cfg.InputTopic,
		MinBytes: constants.KafkaMinBytes,
		MaxBytes: constants.KafkaMaxBytes,
	})

	policy := retry.Policy{
		InitialInterval: constants.KafkaFetchBackoff,
		MaxInterval:     30 * constants.KafkaFetchBackoff,
		Multiplier:      2.0,
	}

	for {
		var m kafka.Message
		err := retry.Do(ctx, policy, func() error {
			var fetchErr error
			m, fetchErr = s.reader.FetchMessage(ctx)
			if fetchErr != nil && ctx.Err() == nil {
				s.logger.Errorw("Error fetching kafka message",
					"error", fetchErr,
					"topic", s.cfg.InputTopic,
				)
			}
			return fetchErr
		})
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Infow("Stopped consuming",
					"topic", s.cfg.InputTopic,
					"reason", "context canceled",
				)
				return ctx.Err()
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}

		var ev models.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			s.logger.Errorw("Failed to unmarshal event, skipping",
				"error", err,
				"topic", s.cfg.InputTopic,
				"offset", m.Offset,
			)
			_ = s.reader.CommitMessages(ctx, m)
			continue
		}

		if err := models.ValidateEvent(&ev); err != nil {
			s.logger.Warnw("Invalid event from broker, skipping",
				"error", err,
				"topic", s.cfg.InputTopic,
				"offset", m.Offset,
			)
			_ = s.reader.CommitMessages(ctx, m)
			continue
		}

		s.sink.Enqueue(ev)

		if err := s.reader.CommitMessages(ctx, m); err != nil {
			// Redelivery after a failed commit only produces duplicates,
			// which the ledger drops.
			s.logger.Errorw("Failed to commit message",
				"error", err,
				"topic", s.cfg.InputTopic,
			)
		}
	}
}

func (s *KafkaSource) Close() error {
	if s.reader != nil {
		return s.reader.Close()
	}
	return nil
}
