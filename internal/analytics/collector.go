// Package analytics records search and indexing events. Events are counted
// in-process by an Aggregator and, when a Kafka publisher is configured,
// shipped to the analytics topic without blocking the caller.
package analytics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/kafka"
)

type Collector struct {
	publisher  kafka.Publisher
	aggregator *Aggregator
	eventCh    chan any
	logger     *slog.Logger
	done       chan struct{}

	// mu guards closed and sends on eventCh against Close.
	mu     sync.RWMutex
	closed bool
}

// NewCollector creates a Collector. publisher may be nil, in which case
// events are only aggregated locally.
func NewCollector(publisher kafka.Publisher, aggregator *Aggregator, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher:  publisher,
		aggregator: aggregator,
		eventCh:    make(chan any, bufferSize),
		logger:     slog.Default().With("component", "analytics-collector"),
		done:       make(chan struct{}),
	}
}

// Start launches the publish loop. Without a publisher it only arranges for
// Close to return.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"kafka", c.publisher != nil,
	)
}

// Track records event and queues it for publishing. It never blocks; when
// the buffer is full, or the collector is closed, the event is dropped from
// the Kafka stream.
func (c *Collector) Track(event any) {
	if c.aggregator != nil {
		c.aggregator.Record(event)
	}
	if c.publisher == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Aggregator returns the local aggregator, or nil.
func (c *Collector) Aggregator() *Aggregator {
	return c.aggregator
}

// Close stops the publish loop after flushing queued events. Start must
// have been called. Events tracked afterwards are only aggregated.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event any) {
	if err := c.publisher.Publish(ctx, kafka.Event{
		Key:   eventKey(event),
		Value: event,
	}); err != nil {
		c.logger.Error("failed to publish analytics event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
