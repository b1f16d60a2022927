package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dedupgate/internal/domain/ledger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedup_messages_accepted_total",
		Help: "Messages that passed the dedup gate and were handed to business logic",
	}, []string{"queue"})
	duplicatesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedup_duplicates_detected_total",
		Help: "Messages rejected by the dedup gate as already processed",
	}, []string{"queue"})
	failOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedup_fail_open_total",
		Help: "Messages processed without deduplication because the message ID was blank",
	})
)

// Engine implements the check-and-mark protocol on top of a Ledger.
// Presence of a ledger record for a (message ID, queue) pair is the sole
// authority on whether that queue has processed the message.
type Engine struct {
	ledger Ledger
	log    *slog.Logger
}

func NewEngine(l Ledger, log *slog.Logger) *Engine {
	return &Engine{ledger: l, log: log}
}

// TryProcess reports whether the caller should process the message: true
// exactly once per (messageID, queueName) pair for as long as a record
// exists, false on every later call. The check and the insert are a single
// atomic ledger operation, so concurrent deliveries of the same message
// cannot both win.
//
// A blank message ID cannot be deduplicated; the engine fails open and
// returns true without writing a record. A ledger error fails the call:
// guessing either outcome would silently break the gate.
func (e *Engine) TryProcess(ctx context.Context, messageID, queueName, messageType string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		e.log.Warn("message ID is blank, processing without deduplication", "queue", queueName)
		failOpenTotal.Inc()
		return true, nil
	}

	inserted, err := e.ledger.InsertIfAbsent(ctx, ledger.ProcessedRecord{
		MessageID:   messageID,
		QueueName:   queueName,
		ProcessedAt: time.Now().UTC(),
		Status:      ledger.StatusProcessed,
		MessageType: messageType,
	})
	if err != nil {
		return false, fmt.Errorf("dedup check-and-mark: %w", err)
	}

	if !inserted {
		e.log.Info("duplicate detected", "message_id", messageID, "queue", queueName)
		duplicatesDetected.WithLabelValues(queueName).Inc()
		return false, nil
	}

	e.log.Debug("message marked as processed", "message_id", messageID, "queue", queueName)
	messagesAccepted.WithLabelValues(queueName).Inc()
	return true, nil
}

// IsDuplicate reports whether the queue already holds a record for the
// message. Read-only; it does not mark anything.
func (e *Engine) IsDuplicate(ctx context.Context, messageID, queueName string) (bool, error) {
	return e.ledger.Exists(ctx, messageID, queueName)
}

// IsDuplicateAnyQueue reports whether any queue holds a record for the
// message. Diagnostic only: it must not be used as the per-queue gate.
func (e *Engine) IsDuplicateAnyQueue(ctx context.Context, messageID string) (bool, error) {
	return e.ledger.ExistsAnyQueue(ctx, messageID)
}

// AllowReprocess releases the gate for the message on every queue.
// Used by the administrative surface to recover stuck records.
func (e *Engine) AllowReprocess(ctx context.Context, messageID string) error {
	n, err := e.ledger.DeleteByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("release dedup record: %w", err)
	}
	e.log.Info("message released for reprocessing", "message_id", messageID, "records_removed", n)
	return nil
}

// AllowReprocessOnQueue releases the gate for a single queue. Failing
// handlers use this form so one queue's failure does not reopen the gate
// for queues that processed the message successfully.
func (e *Engine) AllowReprocessOnQueue(ctx context.Context, messageID, queueName string) error {
	if _, err := e.ledger.DeleteByIDAndQueue(ctx, messageID, queueName); err != nil {
		return fmt.Errorf("release dedup record: %w", err)
	}
	e.log.Info("message released for reprocessing", "message_id", messageID, "queue", queueName)
	return nil
}

// MarkFailed records a FAILED outcome for retry tracking. It replaces any
// existing record for the pair; it does not release the gate.
func (e *Engine) MarkFailed(ctx context.Context, messageID, queueName, messageType string) error {
	err := e.ledger.Replace(ctx, ledger.ProcessedRecord{
		MessageID:   messageID,
		QueueName:   queueName,
		ProcessedAt: time.Now().UTC(),
		Status:      ledger.StatusFailed,
		MessageType: messageType,
	})
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ProcessedCount returns the number of ledger rows for a queue, any status.
func (e *Engine) ProcessedCount(ctx context.Context, queueName string) (int64, error) {
	return e.ledger.CountByQueue(ctx, queueName)
}

// TotalCount returns the number of ledger rows across all queues.
func (e *Engine) TotalCount(ctx context.Context) (int64, error) {
	return e.ledger.CountAll(ctx)
}

// ListByQueue returns all records for a queue.
func (e *Engine) ListByQueue(ctx context.Context, queueName string) ([]ledger.ProcessedRecord, error) {
	return e.ledger.ListByQueue(ctx, queueName)
}

// FindByID returns the records for a message across all queues.
func (e *Engine) FindByID(ctx context.Context, messageID string) ([]ledger.ProcessedRecord, error) {
	return e.ledger.FindByID(ctx, messageID)
}
