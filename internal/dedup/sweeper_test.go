package dedup

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"dedupgate/internal/domain/ledger"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupOlderThanRemovesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLedger()
	now := time.Now().UTC()

	records := []ledger.ProcessedRecord{
		{MessageID: "old", QueueName: "q1", ProcessedAt: now.AddDate(0, 0, -10), Status: ledger.StatusProcessed},
		{MessageID: "recent", QueueName: "q1", ProcessedAt: now.AddDate(0, 0, -3), Status: ledger.StatusProcessed},
	}
	for _, rec := range records {
		inserted, err := store.InsertIfAbsent(ctx, rec)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	sweeper := NewSweeper(store, 7, time.Hour, testLogger())

	deleted, err := sweeper.CleanupOlderThan(ctx, 7)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	exists, err := store.Exists(ctx, "old", "q1")
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = store.Exists(ctx, "recent", "q1")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestCleanupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLedger()

	_, err := store.InsertIfAbsent(ctx, ledger.ProcessedRecord{
		MessageID:   "old",
		QueueName:   "q1",
		ProcessedAt: time.Now().UTC().AddDate(0, 0, -10),
		Status:      ledger.StatusProcessed,
	})
	require.NoError(t, err)

	sweeper := NewSweeper(store, 7, time.Hour, testLogger())

	deleted, err := sweeper.CleanupOlderThan(ctx, 7)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	// Rerunning with the same cutoff only deletes what remains.
	deleted, err = sweeper.CleanupOlderThan(ctx, 7)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

// blockingLedger lets a test hold a sweep open while another one starts.
type blockingLedger struct {
	*MemoryLedger
	release chan struct{}
	entered chan struct{}
}

func (b *blockingLedger) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.MemoryLedger.DeleteOlderThan(ctx, cutoff)
}

func TestSweepSkipsOverlappingRun(t *testing.T) {
	ctx := context.Background()
	store := &blockingLedger{
		MemoryLedger: NewMemoryLedger(),
		release:      make(chan struct{}),
		entered:      make(chan struct{}, 1),
	}

	sweeper := NewSweeper(store, 7, time.Hour, testLogger())

	firstDone := make(chan error, 1)
	go func() {
		_, err := sweeper.Sweep(ctx)
		firstDone <- err
	}()

	<-store.entered

	// Second sweep while the first is still inside the ledger: skipped.
	deleted, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, deleted)

	close(store.release)
	require.NoError(t, <-firstDone)
}

func TestSweeperDefaults(t *testing.T) {
	sweeper := NewSweeper(NewMemoryLedger(), 0, 0, testLogger())
	require.Equal(t, 7, sweeper.retentionDays)
	require.Equal(t, 24*time.Hour, sweeper.interval)
}
