package handlers

import "github.com/go-chi/chi/v5"

func RegisterTopicRoutes(r chi.Router, h *TopicHandler) {
	r.Route("/api/topics", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

func RegisterSubscriberRoutes(r chi.Router, h *SubscriberHandler) {
	r.Route("/api/subscribers", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Get("/topic/{topicID}", h.ListByTopic)
		r.Put("/{id}", h.Update)
		r.Patch("/{id}/unsubscribe", h.Unsubscribe)
		r.Delete("/{id}", h.Delete)
	})
}

func RegisterNewsletterRoutes(r chi.Router, h *NewsletterHandler) {
	r.Route("/api/newsletters", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Get("/topic/{topicID}", h.ListByTopic)
		r.Get("/status/{state}", h.ListByState)
		r.Put("/{id}", h.Update)
		r.Patch("/{id}/cancel", h.Cancel)
		r.Post("/{id}/send-now", h.SendNow)
		r.Get("/{id}/deliveries", h.Deliveries)
		r.Delete("/{id}", h.Delete)
	})
}
