package consumer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"aggregator/internal/constants"
	"aggregator/internal/ledger"
	"aggregator/internal/logger"
	"aggregator/pkg/logging"
	"aggregator/pkg/metrics"
	"aggregator/pkg/models"
)

// Ledger is the slice of the dedup ledger the consumer needs. Only
// TryInsert's return value is an admission decision; everything else is a
// read path.
type Ledger interface {
	TryInsert(ctx context.Context, ev models.Event) (bool, error)
	List(ctx context.Context, topic string, limit int) ([]ledger.Record, error)
	Topics(ctx context.Context) ([]string, error)
}

// Stats is the point-in-time view served by GET /stats. The counter sum
// invariant received == unique_processed + duplicate_dropped holds only at
// quiescence; received is incremented at enqueue time, ahead of draining.
type Stats struct {
	Received         int64    `json:"received"`
	UniqueProcessed  int64    `json:"unique_processed"`
	DuplicateDropped int64    `json:"duplicate_dropped"`
	Topics           []string `json:"topics"`
	Uptime           float64  `json:"uptime"`
}

type runState struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (r *runState) signalStop() {
	r.once.Do(func() { close(r.stop) })
}

func (r *runState) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Consumer drains the inbound queue against the dedup ledger. Exactly one
// logical worker runs the loop; reads may be issued concurrently by API
// callers while the loop is mid-cycle.
type Consumer struct {
	ledger    Ledger
	processor Processor
	queue     *Queue
	logger    logger.Logger
	startTime time.Time

	received         atomic.Int64
	uniqueProcessed  atomic.Int64
	duplicateDropped atomic.Int64

	mu  sync.Mutex
	run *runState
}

func New(store Ledger, proc Processor, log logger.Logger) *Consumer {
	return &Consumer{
		ledger:    store,
		processor: proc,
		queue:     NewQueue(),
		logger:    log,
		startTime: time.Now(),
	}
}

// Enqueue appends the event to the inbound queue. The received counter moves
// here, synchronously, before the event is drained.
func (c *Consumer) Enqueue(ev models.Event) {
	c.queue.Push(ev)
	c.received.Add(1)
	metrics.EventsReceivedTotal.Inc()
	metrics.SetQueueDepth(c.queue.Len())

	c.logger.Debugw("Event enqueued",
		"topic", ev.Topic,
		"event_id", ev.EventID,
	)
}

// Start runs the drain loop in the calling goroutine until Stop is called or
// ctx is cancelled. It returns an error if the loop is already running.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.run != nil {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	run := &runState{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	c.run = run
	c.mu.Unlock()

	defer func() {
		close(run.done)
		c.mu.Lock()
		c.run = nil
		c.mu.Unlock()
	}()

	go func() {
		select {
		case <-ctx.Done():
			run.signalStop()
			c.queue.Wake()
		case <-run.stop:
		}
	}()

	c.logger.Infow("Consumer started")

	for {
		ev, ok := c.queue.Pop(run.stopped)
		if !ok {
			c.logger.Infow("Consumer stopped", "queued", c.queue.Len())
			return nil
		}
		c.processEvent(ctx, ev)
		metrics.SetQueueDepth(c.queue.Len())
	}
}

// Stop signals the loop to exit after the in-flight event finishes and waits
// for it up to a bounded grace period. Queued events are neither dropped nor
// cancelled; they stay queued for a future Start.
func (c *Consumer) Stop() {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	if run == nil {
		return
	}

	run.signalStop()
	c.queue.Wake()

	select {
	case <-run.done:
	case <-time.After(constants.ConsumerStopTimeout):
		c.logger.Warnw("Consumer did not stop within grace period")
	}
}

// processEvent performs one drain cycle. No per-event failure terminates the
// loop: storage errors are logged and the next item is taken, and a
// processing failure after admission is logged without rolling back the
// record.
func (c *Consumer) processEvent(ctx context.Context, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("Panic while processing event",
				"panic", r,
				"topic", ev.Topic,
				"event_id", ev.EventID,
			)
		}
	}()

	evCtx := logging.WithEventKey(ctx, ev.Key())

	start := time.Now()
	inserted, err := c.ledger.TryInsert(evCtx, ev)
	if err != nil {
		metrics.ObserveInsertDuration(time.Since(start), "error")
		metrics.EventsProcessedTotal.WithLabelValues("error").Inc()
		c.logger.ErrorwCtx(evCtx, "Ledger insert failed, skipping event",
			"error", err,
		)
		return
	}

	if !inserted {
		// Covers both a genuine repeat and a same-key race lost during this
		// drain pass; the two are indistinguishable here and both are safe.
		c.duplicateDropped.Add(1)
		metrics.ObserveInsertDuration(time.Since(start), "duplicate")
		metrics.EventsProcessedTotal.WithLabelValues("duplicate").Inc()
		c.logger.InfowCtx(evCtx, "Duplicate event dropped")
		return
	}

	c.uniqueProcessed.Add(1)
	metrics.ObserveInsertDuration(time.Since(start), "unique")
	metrics.EventsProcessedTotal.WithLabelValues("unique").Inc()
	c.logger.InfowCtx(evCtx, "Event processed")

	procStart := time.Now()
	if err := c.processor.Process(evCtx, ev); err != nil {
		c.logger.ErrorwCtx(evCtx, "Downstream processing failed, admission retained",
			"error", err,
		)
	}
	metrics.ObserveProcessingDuration(time.Since(procStart))
}

// Stats returns the counters plus ledger topics and uptime.
func (c *Consumer) Stats(ctx context.Context) (Stats, error) {
	topics, err := c.ledger.Topics(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Received:         c.received.Load(),
		UniqueProcessed:  c.uniqueProcessed.Load(),
		DuplicateDropped: c.duplicateDropped.Load(),
		Topics:           topics,
		Uptime:           time.Since(c.startTime).Seconds(),
	}, nil
}

// Events returns processed events from the ledger; it never touches the
// queue.
func (c *Consumer) Events(ctx context.Context, topic string, limit int) ([]ledger.Record, error) {
	return c.ledger.List(ctx, topic, limit)
}

// QueueDepth reports the number of events waiting to be drained.
func (c *Consumer) QueueDepth() int {
	return c.queue.Len()
}
