package consumer

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"aggregator/internal/logger"
	pkgerrors "aggregator/pkg/errors"
	"aggregator/pkg/models"
)

// BreakerProcessor guards a downstream processor with a circuit breaker.
// A tripped breaker surfaces as a processing error; the event stays admitted
// in the ledger either way.
type BreakerProcessor struct {
	next    Processor
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

type BreakerConfig struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailureRate float64
}

func NewBreakerProcessor(next Processor, cfg BreakerConfig, log logger.Logger) *BreakerProcessor {
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRate == 0 {
		cfg.FailureRate = 0.5
	}

	settings := gobreaker.Settings{
		Name:        "downstream-processor",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRate >= cfg.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Processor circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BreakerProcessor{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

func (p *BreakerProcessor) Process(ctx context.Context, ev models.Event) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.next.Process(ctx, ev)
	})
	if err != nil {
		return pkgerrors.ErrProcessing.WithCause(err)
	}
	return nil
}
