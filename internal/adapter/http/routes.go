package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/reviewd-io/reviewd/internal/middleware"
)

// MountRoutes attaches the REST surface under /api/v1. The review webhook
// carries HMAC verification when a secret is configured; everything else is
// open to the fronting proxy.
func MountRoutes(r chi.Router, h *Handlers, webhookSecret string) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", h.SubmitMessage)
		r.Get("/requests", h.ListRequests)
		r.Get("/requests/{id}", h.GetRequest)

		r.Group(func(r chi.Router) {
			r.Use(middleware.WebhookHMAC(webhookSecret))
			r.Post("/webhooks/review", h.HandleReviewCallback)
		})
	})
}
