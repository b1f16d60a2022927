package dedup

import (
	"context"
	"sync"
	"time"

	"dedupgate/internal/domain/ledger"
)

type recordKey struct {
	messageID string
	queueName string
}

// MemoryLedger is a mutex-guarded in-memory Ledger. It backs local mode and
// tests; the mutex spans the check and the insert, giving the same
// atomicity as the Postgres ON CONFLICT path.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[recordKey]ledger.ProcessedRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[recordKey]ledger.ProcessedRecord)}
}

func (m *MemoryLedger) InsertIfAbsent(_ context.Context, rec ledger.ProcessedRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{messageID: rec.MessageID, queueName: rec.QueueName}
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.records[key] = rec
	return true, nil
}

func (m *MemoryLedger) Replace(_ context.Context, rec ledger.ProcessedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{messageID: rec.MessageID, queueName: rec.QueueName}
	delete(m.records, key)
	m.records[key] = rec
	return nil
}

func (m *MemoryLedger) Exists(_ context.Context, messageID, queueName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.records[recordKey{messageID: messageID, queueName: queueName}]
	return ok, nil
}

func (m *MemoryLedger) ExistsAnyQueue(_ context.Context, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.records {
		if key.messageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryLedger) DeleteByID(_ context.Context, messageID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for key := range m.records {
		if key.messageID == messageID {
			delete(m.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryLedger) DeleteByIDAndQueue(_ context.Context, messageID, queueName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{messageID: messageID, queueName: queueName}
	if _, ok := m.records[key]; !ok {
		return 0, nil
	}
	delete(m.records, key)
	return 1, nil
}

func (m *MemoryLedger) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for key, rec := range m.records {
		if rec.ProcessedAt.Before(cutoff) {
			delete(m.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryLedger) CountByQueue(_ context.Context, queueName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key := range m.records {
		if key.queueName == queueName {
			count++
		}
	}
	return count, nil
}

func (m *MemoryLedger) CountAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return int64(len(m.records)), nil
}

func (m *MemoryLedger) ListByQueue(_ context.Context, queueName string) ([]ledger.ProcessedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []ledger.ProcessedRecord
	for key, rec := range m.records {
		if key.queueName == queueName {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (m *MemoryLedger) FindByID(_ context.Context, messageID string) ([]ledger.ProcessedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []ledger.ProcessedRecord
	for key, rec := range m.records {
		if key.messageID == messageID {
			records = append(records, rec)
		}
	}
	return records, nil
}
