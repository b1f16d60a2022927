package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"dedupgate/internal/broker"
	"dedupgate/internal/domain/event"
)

// Engine is the slice of the dedup engine the handler wrapper needs.
type Engine interface {
	TryProcess(ctx context.Context, messageID, queueName, messageType string) (bool, error)
	AllowReprocessOnQueue(ctx context.Context, messageID, queueName string) error
}

// BusinessFunc is the side-effecting logic guarded by the dedup gate.
type BusinessFunc func(ctx context.Context, msg event.Message) error

// Wrap builds the delivery handler every queue consumer uses:
//
//  1. decode the envelope
//  2. ask the engine whether to proceed; a duplicate is acked and dropped
//  3. run the business logic
//  4. on failure, release this queue's gate and return the error so the
//     transport redelivers
//
// Only the queue name varies between consumers; the protocol does not.
func Wrap(engine Engine, queue string, fn BusinessFunc, log *slog.Logger) broker.Handler {
	return func(ctx context.Context, d broker.Delivery) error {
		var msg event.Message
		if err := json.Unmarshal(d.Body, &msg); err != nil {
			// Not our envelope or corrupt. Ack and move on.
			log.Error("failed to unmarshal message envelope", "queue", queue, "error", err)
			return nil
		}

		proceed, err := engine.TryProcess(ctx, msg.ID, queue, msg.Type)
		if err != nil {
			return fmt.Errorf("dedup gate for message %q: %w", msg.ID, err)
		}
		if !proceed {
			log.Warn("duplicate message ignored", "queue", queue, "message_id", msg.ID)
			return nil
		}

		if err := fn(ctx, msg); err != nil {
			if relErr := engine.AllowReprocessOnQueue(ctx, msg.ID, queue); relErr != nil {
				log.Error("failed to release dedup record",
					"queue", queue, "message_id", msg.ID, "error", relErr)
			}
			return fmt.Errorf("handle message %q on %q: %w", msg.ID, queue, err)
		}

		return nil
	}
}
