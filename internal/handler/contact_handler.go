package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mareye-api/internal/service"
)

// Base64 attachments grow by a third, so the body limit is above the attachment limit.
const maxContactBody = 150 << 20

type ContactService interface {
	Submit(ctx context.Context, req service.ContactRequest) (bool, error)
}

type ContactHandler struct {
	base
	contact ContactService
}

func NewContactHandler(contact ContactService, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{base: base{logger: logger}, contact: contact}
}

func (h *ContactHandler) RegisterRoutes(r chi.Router) {
	r.Post("/send-email", h.SendEmail)
}

func (h *ContactHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req service.ContactRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxContactBody)
	if err := decodeBody(r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid form data")
		return
	}

	delivered, err := h.contact.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			h.respondWithError(w, http.StatusBadRequest, err, "Invalid form data")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to send message")
		return
	}

	message := "Message sent successfully! We'll get back to you soon."
	if !delivered {
		message = "Message received! There was an issue with email delivery, but your message has been logged and we'll respond soon."
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": message})
}
