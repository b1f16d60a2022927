package dedup

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"dedupgate/internal/domain/ledger"

	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(NewMemoryLedger(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTryProcessReturnsTrueExactlyOnce(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	ok, err := engine.TryProcess(ctx, "m1", "q1", "order.created")
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		ok, err = engine.TryProcess(ctx, "m1", "q1", "order.created")
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestTryProcessPerQueueIndependence(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	ok, err := engine.TryProcess(ctx, "m1", "q1", "t")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = engine.TryProcess(ctx, "m1", "q2", "t")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = engine.TryProcess(ctx, "m1", "q2", "t")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTryProcessConcurrentCallersSingleWinner(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	const n = 64
	var wg sync.WaitGroup
	results := make(chan bool, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := engine.TryProcess(ctx, "m1", "q1", "t")
			if err != nil {
				errs <- err
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var winners int
	for ok := range results {
		if ok {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestTryProcessBlankIDFailsOpen(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	for _, id := range []string{"", "   "} {
		ok, err := engine.TryProcess(ctx, id, "q1", "t")
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Fail-open writes no state: the ledger stays empty.
	count, err := engine.TotalCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestAllowReprocessReopensGate(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	ok, err := engine.TryProcess(ctx, "m1", "q1", "t")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, engine.AllowReprocess(ctx, "m1"))

	ok, err = engine.TryProcess(ctx, "m1", "q1", "t")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAllowReprocessReleasesEveryQueue(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	for _, q := range []string{"q1", "q2", "q3"} {
		ok, err := engine.TryProcess(ctx, "m1", q, "t")
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, engine.AllowReprocess(ctx, "m1"))

	for _, q := range []string{"q1", "q2", "q3"} {
		dup, err := engine.IsDuplicate(ctx, "m1", q)
		require.NoError(t, err)
		require.False(t, dup)
	}
}

func TestAllowReprocessOnQueueIsScoped(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	for _, q := range []string{"q1", "q2"} {
		ok, err := engine.TryProcess(ctx, "m1", q, "t")
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, engine.AllowReprocessOnQueue(ctx, "m1", "q1"))

	dup, err := engine.IsDuplicate(ctx, "m1", "q1")
	require.NoError(t, err)
	require.False(t, dup)

	dup, err = engine.IsDuplicate(ctx, "m1", "q2")
	require.NoError(t, err)
	require.True(t, dup)
}

func TestMarkFailedKeepsGateClosed(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	ok, err := engine.TryProcess(ctx, "m1", "q1", "t")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, engine.MarkFailed(ctx, "m1", "q1", "t"))

	records, err := engine.FindByID(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, ledger.StatusFailed, records[0].Status)

	// A FAILED record still blocks reprocessing until an explicit release.
	ok, err = engine.TryProcess(ctx, "m1", "q1", "t")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsDuplicateAnyQueue(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	dup, err := engine.IsDuplicateAnyQueue(ctx, "m1")
	require.NoError(t, err)
	require.False(t, dup)

	ok, err := engine.TryProcess(ctx, "m1", "q2", "t")
	require.NoError(t, err)
	require.True(t, ok)

	dup, err = engine.IsDuplicateAnyQueue(ctx, "m1")
	require.NoError(t, err)
	require.True(t, dup)

	// The any-queue read is diagnostic only: q1 can still process.
	dup, err = engine.IsDuplicate(ctx, "m1", "q1")
	require.NoError(t, err)
	require.False(t, dup)
}

func TestCounts(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	for _, pair := range []struct{ id, queue string }{
		{"m1", "q1"}, {"m2", "q1"}, {"m3", "q2"},
	} {
		ok, err := engine.TryProcess(ctx, pair.id, pair.queue, "t")
		require.NoError(t, err)
		require.True(t, ok)
	}

	count, err := engine.ProcessedCount(ctx, "q1")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	total, err := engine.TotalCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)

	records, err := engine.ListByQueue(ctx, "q2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "m3", records[0].MessageID)
}
