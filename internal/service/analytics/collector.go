package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ProgrammerXX1/plagio/pkg/kafka"
)

const (
	defaultBufferSize = 10000

	// batchSize and flushEvery bound how long an accepted event waits
	// before it reaches the broker.
	batchSize  = 100
	flushEvery = 2 * time.Second
)

// Collector accepts events on the request path without blocking and
// drains them to Kafka in batches, keyed per org so each org's events
// stay ordered on one partition. Events are dropped (and counted) when
// the buffer is full. A nil *Collector discards everything.
type Collector struct {
	producer *kafka.Producer
	eventCh  chan Event
	dropped  atomic.Uint64
	logger   *slog.Logger
	done     chan struct{}
}

func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan Event, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the drain loop. It runs until Close is called or ctx is
// cancelled; either way the buffered remainder is flushed first.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", batchSize,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Publish with a detached context so a cancelled request context
		// cannot lose the tail of the stream.
		if err := c.producer.PublishBatch(context.Background(), batch); err != nil {
			c.logger.Error("failed to publish analytics batch",
				"events", len(batch),
				"error", err,
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-c.eventCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, kafka.Event{Key: e.EventKey(), Value: e})
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
			if n := c.dropped.Swap(0); n > 0 {
				c.logger.Warn("analytics events dropped (buffer full)", "count", n)
			}
		case <-ctx.Done():
			c.drainInto(&batch)
			flush()
			return
		}
	}
}

// drainInto moves whatever is already buffered on the channel into the
// batch without waiting for more.
func (c *Collector) drainInto(batch *[]kafka.Event) {
	for {
		select {
		case e, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, kafka.Event{Key: e.EventKey(), Value: e})
		default:
			return
		}
	}
}

// Track enqueues one event. It never blocks: when the buffer is full the
// event is dropped and counted, surfaced by the drain loop's periodic
// warning rather than one log line per drop.
func (c *Collector) Track(event Event) {
	if c == nil {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
	}
}

// Close stops accepting events, flushes the backlog, and waits for the
// drain loop to exit.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}
