package postgres

import (
	"context"
	"fmt"
	"time"

	"dedupgate/internal/domain/ledger"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// LedgerRepository stores processed-message records in Postgres. The
// composite primary key (message_id, queue_name) keeps the same message ID
// independent across queues, and the ON CONFLICT insert gives the engine
// its atomic check-and-mark primitive.
type LedgerRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool, tx: NewTxManager(pool)}
}

// EnsureSchema creates the ledger table and its indexes if they are missing.
func (r *LedgerRepository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS processed_messages (
			message_id   VARCHAR(100) NOT NULL,
			queue_name   VARCHAR(100) NOT NULL,
			processed_at TIMESTAMPTZ  NOT NULL,
			status       VARCHAR(50)  NOT NULL,
			message_type VARCHAR(500),
			PRIMARY KEY (message_id, queue_name)
		);
		CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_messages (processed_at);
		CREATE INDEX IF NOT EXISTS idx_queue_name ON processed_messages (queue_name);
	`
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

func (r *LedgerRepository) exec(ctx context.Context) executor {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// InsertIfAbsent returns true if the record was written, false if a record
// for the same (message_id, queue_name) pair already existed.
func (r *LedgerRepository) InsertIfAbsent(ctx context.Context, rec ledger.ProcessedRecord) (bool, error) {
	const query = `
		INSERT INTO processed_messages (message_id, queue_name, processed_at, status, message_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id, queue_name) DO NOTHING
	`

	tag, err := r.exec(ctx).Exec(ctx, query,
		rec.MessageID, rec.QueueName, rec.ProcessedAt, rec.Status, rec.MessageType)
	if err != nil {
		return false, fmt.Errorf("insert processed message: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Replace deletes any record for the pair and inserts a fresh one within a
// single transaction.
func (r *LedgerRepository) Replace(ctx context.Context, rec ledger.ProcessedRecord) error {
	return r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		const del = `DELETE FROM processed_messages WHERE message_id = $1 AND queue_name = $2`
		if _, err := r.exec(ctx).Exec(ctx, del, rec.MessageID, rec.QueueName); err != nil {
			return fmt.Errorf("delete processed message: %w", err)
		}

		const ins = `
			INSERT INTO processed_messages (message_id, queue_name, processed_at, status, message_type)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := r.exec(ctx).Exec(ctx, ins,
			rec.MessageID, rec.QueueName, rec.ProcessedAt, rec.Status, rec.MessageType); err != nil {
			return fmt.Errorf("insert processed message: %w", err)
		}
		return nil
	})
}

func (r *LedgerRepository) Exists(ctx context.Context, messageID, queueName string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM processed_messages WHERE message_id = $1 AND queue_name = $2
		)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, messageID, queueName).Scan(&exists); err != nil {
		return false, fmt.Errorf("query processed message: %w", err)
	}
	return exists, nil
}

func (r *LedgerRepository) ExistsAnyQueue(ctx context.Context, messageID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM processed_messages WHERE message_id = $1
		)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query processed message: %w", err)
	}
	return exists, nil
}

func (r *LedgerRepository) DeleteByID(ctx context.Context, messageID string) (int64, error) {
	const query = `DELETE FROM processed_messages WHERE message_id = $1`

	tag, err := r.exec(ctx).Exec(ctx, query, messageID)
	if err != nil {
		return 0, fmt.Errorf("delete processed message: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *LedgerRepository) DeleteByIDAndQueue(ctx context.Context, messageID, queueName string) (int64, error) {
	const query = `DELETE FROM processed_messages WHERE message_id = $1 AND queue_name = $2`

	tag, err := r.exec(ctx).Exec(ctx, query, messageID, queueName)
	if err != nil {
		return 0, fmt.Errorf("delete processed message: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlderThan removes all records processed before the cutoff. A single
// statement, so the sweep is all-or-nothing.
func (r *LedgerRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM processed_messages WHERE processed_at < $1`

	tag, err := r.exec(ctx).Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *LedgerRepository) CountByQueue(ctx context.Context, queueName string) (int64, error) {
	const query = `SELECT COUNT(*) FROM processed_messages WHERE queue_name = $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, queueName).Scan(&count); err != nil {
		return 0, fmt.Errorf("count processed messages: %w", err)
	}
	return count, nil
}

func (r *LedgerRepository) CountAll(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM processed_messages`

	var count int64
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count processed messages: %w", err)
	}
	return count, nil
}

func (r *LedgerRepository) ListByQueue(ctx context.Context, queueName string) ([]ledger.ProcessedRecord, error) {
	const query = `
		SELECT message_id, queue_name, processed_at, status, COALESCE(message_type, '')
		FROM processed_messages
		WHERE queue_name = $1
		ORDER BY processed_at ASC
	`
	return r.queryRecords(ctx, query, queueName)
}

func (r *LedgerRepository) FindByID(ctx context.Context, messageID string) ([]ledger.ProcessedRecord, error) {
	const query = `
		SELECT message_id, queue_name, processed_at, status, COALESCE(message_type, '')
		FROM processed_messages
		WHERE message_id = $1
		ORDER BY processed_at ASC
	`
	return r.queryRecords(ctx, query, messageID)
}

func (r *LedgerRepository) queryRecords(ctx context.Context, query string, args ...any) ([]ledger.ProcessedRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query processed messages: %w", err)
	}
	defer rows.Close()

	var records []ledger.ProcessedRecord
	for rows.Next() {
		var rec ledger.ProcessedRecord
		if err := rows.Scan(&rec.MessageID, &rec.QueueName, &rec.ProcessedAt, &rec.Status, &rec.MessageType); err != nil {
			return nil, fmt.Errorf("scan processed message: %w", err)
		}
		records = append(records, rec)
	}

	return records, nil
}
