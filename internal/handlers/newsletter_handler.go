package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"newsletter_service/internal/service"
)

type NewsletterHandler struct {
	messages  *service.MessageService
	scheduler *service.Scheduler
}

func NewNewsletterHandler(messages *service.MessageService, scheduler *service.Scheduler) *NewsletterHandler {
	return &NewsletterHandler{
		messages:  messages,
		scheduler: scheduler,
	}
}

type newsletterRequest struct {
	Subject       string     `json:"subject"`
	Body          string     `json:"body"`
	TopicID       int64      `json:"topic_id"`
	ScheduledTime *time.Time `json:"scheduled_time"`
}

func (h *NewsletterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req newsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.ScheduledTime == nil {
		http.Error(w, "scheduled_time is required", http.StatusBadRequest)
		return
	}

	msg, err := h.messages.Create(r.Context(), req.Subject, req.Body, req.TopicID, *req.ScheduledTime)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *NewsletterHandler) List(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messages.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

func (h *NewsletterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	msg, err := h.messages.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *NewsletterHandler) ListByTopic(w http.ResponseWriter, r *http.Request) {
	topicID, ok := pathID(r, "topicID")
	if !ok {
		http.Error(w, "bad topic id", http.StatusBadRequest)
		return
	}

	msgs, err := h.messages.ListByTopic(r.Context(), topicID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

func (h *NewsletterHandler) ListByState(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")

	msgs, err := h.messages.ListByState(r.Context(), state)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

func (h *NewsletterHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	var req newsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	msg, err := h.messages.Update(r.Context(), id, req.Subject, req.Body, req.ScheduledTime)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *NewsletterHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	if err := h.messages.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SendNow triggers a synchronous dispatch, bypassing the schedule. The
// outcome counts are returned directly to the operator.
func (h *NewsletterHandler) SendNow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	out, err := h.scheduler.SendNow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *NewsletterHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	recs, err := h.messages.Deliveries(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recs)
}

func (h *NewsletterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	if err := h.messages.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
