// Package events wires the content store's Kafka document event stream
// into the index writer. Delivery is at-least-once: a message is only
// committed after the event has been accepted by the writer queue, and
// the writer itself is idempotent.
package events

import (
	"context"
	"log/slog"

	"github.com/deskwise/kbsearch/internal/engine"
	"github.com/deskwise/kbsearch/internal/kb"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
	"github.com/deskwise/kbsearch/pkg/kafka"
)

// DocumentConsumer drives the indexing pipeline from Kafka.
type DocumentConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a DocumentConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *DocumentConsumer {
	return &DocumentConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "document-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (dc *DocumentConsumer) Start(ctx context.Context) error {
	dc.logger.Info("document consumer starting")
	return dc.consumer.Start(ctx)
}

// Handler returns a Kafka MessageHandler that enqueues each document
// event into the engine's writer. The enqueue blocks while the queue is
// full, which parks the consume loop and delays the Kafka commit: the
// backpressure propagates to the event source instead of dropping
// events. Cache invalidation is not done here: enqueueing does not mean
// the event is applied yet, so invalidating now would let a concurrent
// query repopulate the cache from the pre-write snapshot. The engine's
// OnApplied hook fires once the new snapshot is published.
func Handler(eng *engine.Engine) kafka.MessageHandler {
	logger := slog.Default().With("component", "document-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[kb.DocumentEvent](value)
		if err != nil {
			// Poison message: log and commit, redelivery cannot fix it.
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if ev.Document.ID == "" {
			logger.Error("document event without ID dropped", "key", string(key))
			return nil
		}
		logger.Debug("document event received",
			"event_type", ev.Type,
			"doc_id", ev.Document.ID,
		)
		if err := eng.Apply(ctx, ev); err != nil {
			return pkgerrors.Newf(pkgerrors.ErrInternal, 500,
				"enqueueing %s event for document %s: %v", ev.Type, ev.Document.ID, err)
		}
		return nil
	}
}
