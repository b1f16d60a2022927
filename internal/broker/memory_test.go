package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryTransportDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := NewMemoryTransport(discardLogger())

	received := make(chan Delivery, 1)
	err := transport.Subscribe(ctx, "q1", func(_ context.Context, d Delivery) error {
		received <- d
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, transport.Publish(ctx, "q1", []byte("hello")))

	select {
	case d := <-received:
		require.Equal(t, "q1", d.Queue)
		require.Equal(t, []byte("hello"), d.Body)
		require.False(t, d.Redelivered)
		require.Equal(t, 1, d.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not received")
	}
}

func TestMemoryTransportRedeliversOnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := NewMemoryTransport(discardLogger())

	var attempts atomic.Int32
	done := make(chan Delivery, 1)
	err := transport.Subscribe(ctx, "q1", func(_ context.Context, d Delivery) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient failure")
		}
		done <- d
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, transport.Publish(ctx, "q1", []byte("retry me")))

	select {
	case d := <-done:
		require.True(t, d.Redelivered)
		require.Equal(t, 2, d.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered")
	}
}

func TestMemoryTransportDropsAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := NewMemoryTransport(discardLogger())

	var attempts atomic.Int32
	err := transport.Subscribe(ctx, "q1", func(_ context.Context, _ Delivery) error {
		attempts.Add(1)
		return errors.New("permanent failure")
	})
	require.NoError(t, err)

	require.NoError(t, transport.Publish(ctx, "q1", []byte("doomed")))

	require.Eventually(t, func() bool {
		return attempts.Load() == memoryMaxAttempts
	}, 3*time.Second, 10*time.Millisecond)

	// No further attempts after the drop.
	time.Sleep(3 * memoryRetryBackoff)
	require.EqualValues(t, memoryMaxAttempts, attempts.Load())
}
