package consumer

import (
	"context"
	"time"

	"aggregator/internal/logger"
	"aggregator/pkg/models"
)

// Processor is the downstream step invoked for newly-admitted events only.
// A failure is logged by the caller and never rolls back the ledger
// admission: the system chooses at-most-once over retry-on-failure.
type Processor interface {
	Process(ctx context.Context, ev models.Event) error
}

// SimulatedProcessor stands in for a real downstream system with a
// bounded-latency call that always succeeds.
type SimulatedProcessor struct {
	latency time.Duration
	logger  logger.Logger
}

func NewSimulatedProcessor(latency time.Duration, log logger.Logger) *SimulatedProcessor {
	if latency <= 0 {
		latency = 10 * time.Millisecond
	}
	return &SimulatedProcessor{latency: latency, logger: log}
}

func (p *SimulatedProcessor) Process(ctx context.Context, ev models.Event) error {
	p.logger.DebugwCtx(ctx, "Processing event",
		"topic", ev.Topic,
		"event_id", ev.EventID,
	)

	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
