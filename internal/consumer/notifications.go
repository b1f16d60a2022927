package consumer

import (
	"context"
	"log/slog"

	"dedupgate/internal/domain/event"
)

// NotificationHandlers hold the business logic behind the three fanout
// subscriber queues. Each queue keeps its own dedup ledger, so the same
// broadcast is delivered once to each of email, SMS and push.
type NotificationHandlers struct {
	log *slog.Logger
}

func NewNotificationHandlers(log *slog.Logger) *NotificationHandlers {
	return &NotificationHandlers{log: log}
}

func (h *NotificationHandlers) SendEmail(_ context.Context, msg event.Message) error {
	h.log.Info("sending email notification",
		"message_id", msg.ID, "subject", msg.Type, "body", msg.Content)
	return nil
}

func (h *NotificationHandlers) SendSMS(_ context.Context, msg event.Message) error {
	h.log.Info("sending sms notification",
		"message_id", msg.ID, "text", msg.Content)
	return nil
}

func (h *NotificationHandlers) SendPush(_ context.Context, msg event.Message) error {
	h.log.Info("sending push notification",
		"message_id", msg.ID, "title", msg.Type, "body", msg.Content)
	return nil
}
