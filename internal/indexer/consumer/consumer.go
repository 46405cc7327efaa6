// Package consumer reads post lifecycle events from Kafka and applies them to
// the search index: created and updated posts are re-indexed, deleted posts
// are removed.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/resilience"
)

// Post event types published by the note application.
const (
	EventPostCreated = "post.created"
	EventPostUpdated = "post.updated"
	EventPostDeleted = "post.deleted"
)

// PostEvent is the JSON payload on the post events topic.
type PostEvent struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	Content string `json:"content,omitempty"`
}

// Indexer is the subset of the search service the consumer drives.
type Indexer interface {
	IndexDocument(ctx context.Context, id int64, text string) error
	RemoveDocument(ctx context.Context, id int64) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// DefaultRetry retries store outages a few times before the event is given
// up on; the next rebuild repairs whatever was missed.
var DefaultRetry = resilience.RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Retryable:    apperrors.IsTransient,
}

// HandleMessage returns a Kafka MessageHandler that applies post events to
// idx. Undecodable, unknown and invalid events are logged and dropped.
func HandleMessage(idx Indexer, retry resilience.RetryConfig) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[PostEvent](value)
		if err != nil {
			logger.Error("failed to decode post event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		logger.Debug("processing post event", "type", event.Type, "doc_id", event.ID)

		var apply func() error
		switch event.Type {
		case EventPostCreated, EventPostUpdated:
			apply = func() error { return idx.IndexDocument(ctx, event.ID, event.Content) }
		case EventPostDeleted:
			apply = func() error { return idx.RemoveDocument(ctx, event.ID) }
		default:
			logger.Warn("ignoring unknown post event", "type", event.Type, "doc_id", event.ID)
			return nil
		}

		err = resilience.Retry(ctx, "apply "+event.Type, retry, apply)
		switch {
		case err == nil:
			logger.Info("post event applied", "type", event.Type, "doc_id", event.ID)
			return nil
		case errors.Is(err, apperrors.ErrInvalidDocument):
			logger.Warn("post has no indexable content", "doc_id", event.ID)
			return nil
		default:
			return fmt.Errorf("applying %s for document %d: %w", event.Type, event.ID, err)
		}
	}
}
