package event

import "time"

// Message is the envelope exchanged between producers and consumers.
// ID is assigned by the producer and identifies the logical event; the
// dedup ledger keys on it together with the receiving queue name.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}
