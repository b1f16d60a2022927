package consumer

import (
	"context"
	"log/slog"

	"dedupgate/internal/domain/event"
)

// EventHandlers hold the business logic behind the topic exchange queues:
// order processing, error alerting, and the catch-all audit trail.
type EventHandlers struct {
	log *slog.Logger
}

func NewEventHandlers(log *slog.Logger) *EventHandlers {
	return &EventHandlers{log: log}
}

func (h *EventHandlers) ProcessOrder(_ context.Context, msg event.Message) error {
	h.log.Info("processing order event",
		"message_id", msg.ID, "type", msg.Type, "content", msg.Content)
	return nil
}

func (h *EventHandlers) HandleError(_ context.Context, msg event.Message) error {
	h.log.Warn("error alert",
		"message_id", msg.ID, "type", msg.Type, "content", msg.Content, "source", msg.Source)
	return nil
}

func (h *EventHandlers) AuditEvent(_ context.Context, msg event.Message) error {
	h.log.Info("auditing event",
		"message_id", msg.ID, "type", msg.Type, "source", msg.Source)
	return nil
}
