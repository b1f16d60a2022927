package consumer_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"dedupgate/internal/broker"
	"dedupgate/internal/consumer"
	"dedupgate/internal/dedup"
	"dedupgate/internal/domain/event"

	"github.com/stretchr/testify/require"
)

// counter records business-logic executions per queue.
type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCounter() *counter {
	return &counter{calls: make(map[string]int)}
}

func (c *counter) handler(queue string) consumer.BusinessFunc {
	return func(_ context.Context, _ event.Message) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.calls[queue]++
		return nil
	}
}

func (c *counter) get(queue string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[queue]
}

func (c *counter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, v := range c.calls {
		n += v
	}
	return n
}

func setupBroker(t *testing.T, ctx context.Context, queues []string) (*broker.ExchangePublisher, *dedup.Engine, *counter) {
	t.Helper()

	topology, err := consumer.DefaultTopology()
	require.NoError(t, err)

	transport := broker.NewMemoryTransport(testLogger())
	engine := dedup.NewEngine(dedup.NewMemoryLedger(), testLogger())
	counts := newCounter()

	for _, q := range queues {
		require.NoError(t, transport.Subscribe(ctx, q, consumer.Wrap(engine, q, counts.handler(q), testLogger())))
	}

	return broker.NewExchangePublisher(topology, transport, testLogger()), engine, counts
}

func publish(t *testing.T, pub *broker.ExchangePublisher, exchange, routingKey string, msg event.Message) {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), exchange, routingKey, body))
}

func TestFanoutBroadcastProcessedOncePerQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queues := []string{
		consumer.NotificationQueue1,
		consumer.NotificationQueue2,
		consumer.NotificationQueue3,
	}
	pub, engine, counts := setupBroker(t, ctx, queues)

	msg := event.Message{ID: "m1", Type: "announcement", Content: "hello", Timestamp: time.Now()}
	publish(t, pub, consumer.FanoutExchange, "", msg)

	// Each of the three independent queues accepts the broadcast once.
	require.Eventually(t, func() bool {
		return counts.total() == 3
	}, 3*time.Second, 10*time.Millisecond)
	for _, q := range queues {
		require.Equal(t, 1, counts.get(q))
	}

	// Redelivering the identical message: every queue reports duplicate.
	publish(t, pub, consumer.FanoutExchange, "", msg)

	require.Eventually(t, func() bool {
		for _, q := range queues {
			dup, err := engine.IsDuplicate(context.Background(), "m1", q)
			if err != nil || !dup {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 3, counts.total())
}

func TestTopicRoutingWithDedup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queues := []string{consumer.OrdersQueue, consumer.ErrorsQueue, consumer.AllQueue}
	pub, _, counts := setupBroker(t, ctx, queues)

	// order.created reaches the orders binding (order.*) and the catch-all
	// (#), but not *.error.
	publish(t, pub, consumer.TopicExchange, "order.created",
		event.Message{ID: "m-created", Type: "order.created"})

	require.Eventually(t, func() bool {
		return counts.get(consumer.OrdersQueue) == 1 && counts.get(consumer.AllQueue) == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.Zero(t, counts.get(consumer.ErrorsQueue))

	// order.payment.completed has two segments after "order." so it only
	// matches the catch-all.
	publish(t, pub, consumer.TopicExchange, "order.payment.completed",
		event.Message{ID: "m-payment", Type: "order.payment.completed"})

	require.Eventually(t, func() bool {
		return counts.get(consumer.AllQueue) == 2
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, counts.get(consumer.OrdersQueue))
	require.Zero(t, counts.get(consumer.ErrorsQueue))
}
