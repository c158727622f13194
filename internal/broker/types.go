package broker

import (
	"context"

	"aggregator/pkg/models"
)

// Sink is where accepted events go; the consumer queue satisfies it.
type Sink interface {
	Enqueue(ev models.Event)
}

// Source feeds events from an external transport into a Sink.
type Source interface {
	Run(ctx context.Context) error
	Close() error
}
