package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	memoryQueueDepth   = 128
	memoryMaxAttempts  = 5
	memoryRetryBackoff = 50 * time.Millisecond
)

// MemoryTransport is an in-process queue backend used by local mode and
// tests. Each queue is a buffered channel with one consumer goroutine; a
// handler error puts the delivery back on the queue as a redelivery, up to
// a bounded number of attempts.
type MemoryTransport struct {
	mu     sync.Mutex
	queues map[string]chan Delivery
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewMemoryTransport(log *slog.Logger) *MemoryTransport {
	return &MemoryTransport{
		queues: make(map[string]chan Delivery),
		log:    log,
	}
}

func (t *MemoryTransport) queue(name string) chan Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.queues[name]
	if !ok {
		ch = make(chan Delivery, memoryQueueDepth)
		t.queues[name] = ch
	}
	return ch
}

func (t *MemoryTransport) Publish(_ context.Context, queue string, body []byte) error {
	select {
	case t.queue(queue) <- Delivery{Queue: queue, Body: body, Attempt: 1}:
		return nil
	default:
		return fmt.Errorf("queue %q is full", queue)
	}
}

// Subscribe starts one consumer goroutine for the queue. It runs until the
// context is cancelled.
func (t *MemoryTransport) Subscribe(ctx context.Context, queue string, h Handler) error {
	ch := t.queue(queue)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-ch:
				if err := h(ctx, d); err != nil {
					t.redeliver(ctx, ch, d, err)
				}
			}
		}
	}()
	return nil
}

func (t *MemoryTransport) redeliver(ctx context.Context, ch chan Delivery, d Delivery, cause error) {
	if d.Attempt >= memoryMaxAttempts {
		t.log.Error("dropping message after max delivery attempts",
			"queue", d.Queue, "attempts", d.Attempt, "error", cause)
		return
	}

	d.Attempt++
	d.Redelivered = true
	t.log.Warn("handler failed, redelivering",
		"queue", d.Queue, "attempt", d.Attempt, "error", cause)

	select {
	case <-ctx.Done():
	case <-time.After(memoryRetryBackoff):
		select {
		case ch <- d:
		default:
			t.log.Error("redelivery dropped, queue full", "queue", d.Queue)
		}
	}
}

// Wait blocks until all consumer goroutines have stopped. Call after
// cancelling the context passed to Subscribe.
func (t *MemoryTransport) Wait() {
	t.wg.Wait()
}
