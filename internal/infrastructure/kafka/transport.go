// Package kafka backs the broker queues with Kafka: one topic per logical
// queue, one consumer group per queue. Offsets are committed only after the
// handler returns nil, so an unhandled failure surfaces as redelivery.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dedupgate/internal/broker"

	"github.com/segmentio/kafka-go"
)

const maxHandleRetries = 5

type Config struct {
	Brokers     []string
	GroupPrefix string
}

type Transport struct {
	cfg    Config
	writer *kafka.Writer
	log    *slog.Logger

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

func NewTransport(cfg Config, log *slog.Logger) *Transport {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Transport{cfg: cfg, writer: w, log: log}
}

func (t *Transport) Publish(ctx context.Context, queue string, body []byte) error {
	err := t.writer.WriteMessages(ctx, kafka.Message{
		Topic: queue,
		Value: body,
	})
	if err != nil {
		return fmt.Errorf("write message to %q: %w", queue, err)
	}
	return nil
}

// Subscribe starts a fetch loop for the queue in its own goroutine. The
// handler is retried with exponential backoff; after the last attempt the
// message is dropped and the offset committed so the partition keeps moving.
func (t *Transport) Subscribe(ctx context.Context, queue string, h broker.Handler) error {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: false,
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  t.cfg.Brokers,
		Topic:    queue,
		GroupID:  fmt.Sprintf("%s-%s", t.cfg.GroupPrefix, queue),
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  1 * time.Second,
		Dialer:   dialer,
	})

	t.mu.Lock()
	t.readers = append(t.readers, r)
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.consume(ctx, r, queue, h)
	}()
	return nil
}

func (t *Transport) consume(ctx context.Context, r *kafka.Reader, queue string, h broker.Handler) {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Error("failed to fetch message", "queue", queue, "error", err)
			time.Sleep(1 * time.Second)
			continue
		}

		for attempt := 1; attempt <= maxHandleRetries; attempt++ {
			if attempt > 1 {
				backoff := time.Duration(1<<attempt) * time.Second
				t.log.Info("retrying delivery",
					"queue", queue, "attempt", attempt, "backoff", backoff)
				time.Sleep(backoff)
			}

			err = h(ctx, broker.Delivery{
				Queue:       queue,
				Body:        msg.Value,
				Redelivered: attempt > 1,
				Attempt:     attempt,
			})
			if err == nil {
				break
			}
			t.log.Error("delivery failed", "queue", queue, "attempt", attempt, "error", err)
		}

		if err != nil {
			t.log.Error("dropping message after max delivery attempts",
				"queue", queue, "retries", maxHandleRetries, "error", err)
		}
		if err := r.CommitMessages(ctx, msg); err != nil {
			t.log.Error("failed to commit offset", "queue", queue, "error", err)
		}
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	readers := t.readers
	t.mu.Unlock()

	for _, r := range readers {
		if err := r.Close(); err != nil {
			t.log.Error("failed to close reader", "error", err)
		}
	}
	t.wg.Wait()
	return t.writer.Close()
}
