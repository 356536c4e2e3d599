package handlers

import (
	"encoding/json"
	"net/http"

	"newsletter_service/internal/service"
)

type SubscriberHandler struct {
	subscribers *service.SubscriberService
}

func NewSubscriberHandler(subscribers *service.SubscriberService) *SubscriberHandler {
	return &SubscriberHandler{subscribers: subscribers}
}

type subscriberRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	TopicID int64  `json:"topic_id"`
	Active  *bool  `json:"active"`
}

func (h *SubscriberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req subscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	sub, err := h.subscribers.Create(r.Context(), req.Email, req.Name, req.TopicID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

func (h *SubscriberHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subscribers.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

func (h *SubscriberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	sub, err := h.subscribers.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriberHandler) ListByTopic(w http.ResponseWriter, r *http.Request) {
	topicID, ok := pathID(r, "topicID")
	if !ok {
		http.Error(w, "bad topic id", http.StatusBadRequest)
		return
	}

	subs, err := h.subscribers.GetActiveByTopic(r.Context(), topicID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

func (h *SubscriberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	var req subscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	sub, err := h.subscribers.Update(r.Context(), id, req.Email, req.Name, req.Active)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriberHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	if err := h.subscribers.Unsubscribe(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SubscriberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	if err := h.subscribers.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
