package api

import (
	"net/http"

	"dedupgate/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func NewRouter(h *Handlers, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Publish endpoints, idempotent on the client-supplied key.
		r.Group(func(r chi.Router) {
			if redisClient != nil {
				r.Use(middleware.Idempotency(redisClient))
			}
			r.Post("/fanout/broadcast", h.Broadcast)
			r.Post("/topic/send/{routingKey}", h.SendTopic)
			r.Post("/topic/order-created", h.SendTopicWithKey("order.created"))
			r.Post("/topic/order-updated", h.SendTopicWithKey("order.updated"))
			r.Post("/topic/system-error", h.SendTopicWithKey("system.error"))
			r.Post("/topic/payment-error", h.SendTopicWithKey("payment.error"))
			r.Post("/topic/user-registered", h.SendTopicWithKey("user.registered"))
		})

		r.Route("/deduplication", func(r chi.Router) {
			r.Get("/stats", h.Stats)
			r.Get("/messages/{queueName}", h.MessagesByQueue)
			r.Get("/check/{messageId}", h.CheckMessage)
			r.Delete("/messages/{messageId}", h.AllowReprocess)
			r.Delete("/cleanup", h.Cleanup)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
