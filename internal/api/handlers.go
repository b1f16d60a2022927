package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dedupgate/internal/broker"
	"dedupgate/internal/consumer"
	"dedupgate/internal/dedup"
	"dedupgate/internal/domain/event"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handlers struct {
	publisher *broker.ExchangePublisher
	topology  *broker.Topology
	engine    *dedup.Engine
	sweeper   *dedup.Sweeper
	app       string
	log       *slog.Logger
}

func NewHandlers(
	publisher *broker.ExchangePublisher,
	topology *broker.Topology,
	engine *dedup.Engine,
	sweeper *dedup.Sweeper,
	app string,
	log *slog.Logger,
) *Handlers {
	return &Handlers{
		publisher: publisher,
		topology:  topology,
		engine:    engine,
		sweeper:   sweeper,
		app:       app,
		log:       log,
	}
}

type publishRequest struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

func (h *Handlers) publish(ctx context.Context, exchange, routingKey string, req publishRequest) (event.Message, error) {
	msg := event.Message{
		ID:        req.ID,
		Type:      req.Type,
		Content:   req.Content,
		Timestamp: time.Now().UTC(),
		Source:    req.Source,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Source == "" {
		msg.Source = h.app
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return event.Message{}, err
	}

	if err := h.publisher.Publish(ctx, exchange, routingKey, body); err != nil {
		return event.Message{}, err
	}
	return msg, nil
}

// Broadcast publishes to the fanout exchange; every bound queue receives
// the message regardless of routing key.
func (h *Handlers) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.publish(r.Context(), consumer.FanoutExchange, "", req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "broadcasted",
		"message_id": msg.ID,
	})
}

// SendTopic publishes to the topic exchange with the routing key from the
// URL, e.g. /topic/send/order.created.
func (h *Handlers) SendTopic(w http.ResponseWriter, r *http.Request) {
	routingKey := chi.URLParam(r, "routingKey")
	if routingKey == "" {
		http.Error(w, "missing routing key", http.StatusBadRequest)
		return
	}
	h.sendTopic(w, r, routingKey)
}

// SendTopicWithKey returns a handler bound to a fixed routing key.
func (h *Handlers) SendTopicWithKey(routingKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.sendTopic(w, r, routingKey)
	}
}

func (h *Handlers) sendTopic(w http.ResponseWriter, r *http.Request, routingKey string) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = routingKey
	}

	msg, err := h.publish(r.Context(), consumer.TopicExchange, routingKey, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":      "sent",
		"message_id":  msg.ID,
		"routing_key": routingKey,
	})
}

// Stats reports the total ledger size and the per-queue record counts.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.engine.TotalCount(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	queues := make(map[string]int64)
	for _, q := range h.topology.Queues() {
		count, err := h.engine.ProcessedCount(ctx, q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		queues[q] = count
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_processed_messages": total,
		"queues":                   queues,
	})
}

// MessagesByQueue lists the ledger records of one queue.
func (h *Handlers) MessagesByQueue(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queueName")
	if queueName == "" {
		http.Error(w, "missing queue name", http.StatusBadRequest)
		return
	}

	records, err := h.engine.ListByQueue(r.Context(), queueName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// CheckMessage reports whether a message ID was processed on any queue,
// with its per-queue records.
func (h *Handlers) CheckMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	if messageID == "" {
		http.Error(w, "missing message id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	isDuplicate, err := h.engine.IsDuplicateAnyQueue(ctx, messageID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	records, err := h.engine.FindByID(ctx, messageID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message_id":   messageID,
		"is_duplicate": isDuplicate,
		"records":      records,
	})
}

// AllowReprocess releases a message on every queue so redelivery can go
// through the gate again.
func (h *Handlers) AllowReprocess(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	if messageID == "" {
		http.Error(w, "missing message id", http.StatusBadRequest)
		return
	}

	if err := h.engine.AllowReprocess(r.Context(), messageID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message_id": messageID,
		"status":     "released",
	})
}

// Cleanup removes ledger records older than the given number of days
// (default 7).
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid days parameter", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	deleted, err := h.sweeper.CleanupOlderThan(r.Context(), days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_records": deleted,
		"older_than_days": days,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
