package ledger

import "time"

// Status of a processed-message record.
const (
	StatusProcessed = "PROCESSED"
	StatusFailed    = "FAILED"
)

// ProcessedRecord is a consumer-side record used for deduplication.
// Each queue tracks its own processed message IDs, so the identity of a
// record is the (MessageID, QueueName) pair, never MessageID alone.
type ProcessedRecord struct {
	MessageID   string    `json:"message_id"`
	QueueName   string    `json:"queue_name"`
	ProcessedAt time.Time `json:"processed_at"`
	Status      string    `json:"status"`
	MessageType string    `json:"message_type"`
}
