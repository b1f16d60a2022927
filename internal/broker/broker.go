// Package broker provides the exchange topology (fanout and topic routing)
// and the queue transports messages travel over. Routing decides which
// queues get a copy of a message; transports own delivery and redelivery.
package broker

import "context"

// Delivery is a single message handed to a queue consumer.
type Delivery struct {
	Queue       string
	Body        []byte
	Redelivered bool
	Attempt     int
}

// Handler consumes a delivery. A non-nil error asks the transport to
// redeliver the message.
type Handler func(ctx context.Context, d Delivery) error

// Publisher appends a message to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Transport is a queue backend: publish plus per-queue subscriptions.
type Transport interface {
	Publisher
	Subscribe(ctx context.Context, queue string, h Handler) error
}
