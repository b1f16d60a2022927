package dedup

import (
	"context"
	"time"

	"dedupgate/internal/domain/ledger"
)

// Ledger is the persistent store of processed-message records. The engine
// relies on InsertIfAbsent being atomic: two concurrent calls for the same
// (message ID, queue) pair must never both report the row as written.
type Ledger interface {
	// InsertIfAbsent writes the record unless one already exists for the
	// same (MessageID, QueueName) pair. Returns true if the row was written.
	InsertIfAbsent(ctx context.Context, rec ledger.ProcessedRecord) (bool, error)

	// Replace removes any record for the pair and writes a fresh one.
	// Records are never updated in place.
	Replace(ctx context.Context, rec ledger.ProcessedRecord) error

	Exists(ctx context.Context, messageID, queueName string) (bool, error)
	ExistsAnyQueue(ctx context.Context, messageID string) (bool, error)

	DeleteByID(ctx context.Context, messageID string) (int64, error)
	DeleteByIDAndQueue(ctx context.Context, messageID, queueName string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	CountByQueue(ctx context.Context, queueName string) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	ListByQueue(ctx context.Context, queueName string) ([]ledger.ProcessedRecord, error)
	FindByID(ctx context.Context, messageID string) ([]ledger.ProcessedRecord, error)
}
