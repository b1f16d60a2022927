package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"dedupgate/internal/broker"
)

// Exchanges and queues of the default deployment. The fanout exchange
// broadcasts notifications to three independent subscriber queues; the
// topic exchange routes events by routing-key pattern.
const (
	FanoutExchange = "notifications.fanout"
	TopicExchange  = "events.topic"

	NotificationQueue1 = "fanout.queue.notification1"
	NotificationQueue2 = "fanout.queue.notification2"
	NotificationQueue3 = "fanout.queue.notification3"

	OrdersQueue = "topic.queue.orders"
	ErrorsQueue = "topic.queue.errors"
	AllQueue    = "topic.queue.all"
)

// DefaultTopology declares the exchanges and bindings above.
func DefaultTopology() (*broker.Topology, error) {
	t := broker.NewTopology()

	if err := t.DeclareExchange(FanoutExchange, broker.Fanout); err != nil {
		return nil, err
	}
	if err := t.DeclareExchange(TopicExchange, broker.Topic); err != nil {
		return nil, err
	}

	for _, q := range []string{NotificationQueue1, NotificationQueue2, NotificationQueue3} {
		if err := t.Bind(FanoutExchange, q, ""); err != nil {
			return nil, err
		}
	}

	// order.* matches order.created but not order.payment.completed;
	// *.error matches system.error but not system.critical.error;
	// # is the catch-all.
	bindings := []struct{ queue, pattern string }{
		{OrdersQueue, "order.*"},
		{ErrorsQueue, "*.error"},
		{AllQueue, "#"},
	}
	for _, b := range bindings {
		if err := t.Bind(TopicExchange, b.queue, b.pattern); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// RegisterAll subscribes every queue consumer on the transport.
func RegisterAll(ctx context.Context, transport broker.Transport, engine Engine, log *slog.Logger) error {
	n := NewNotificationHandlers(log)
	e := NewEventHandlers(log)

	subscriptions := []struct {
		queue string
		fn    BusinessFunc
	}{
		{NotificationQueue1, n.SendEmail},
		{NotificationQueue2, n.SendSMS},
		{NotificationQueue3, n.SendPush},
		{OrdersQueue, e.ProcessOrder},
		{ErrorsQueue, e.HandleError},
		{AllQueue, e.AuditEvent},
	}

	for _, sub := range subscriptions {
		if err := transport.Subscribe(ctx, sub.queue, Wrap(engine, sub.queue, sub.fn, log)); err != nil {
			return fmt.Errorf("subscribe %q: %w", sub.queue, err)
		}
	}
	return nil
}
