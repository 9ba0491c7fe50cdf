package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/blog-platform/internal/service"
)

type ContactHandler struct {
	contact *service.ContactService
	logger  *slog.Logger
}

func NewContactHandler(contact *service.ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{contact: contact, logger: logger}
}

// HandleSubmit accepts a contact form message.
//
// HTTP: POST /api/blog/contact
// Body: {"name": "...", "email": "...", "message": "..."}
//
// A valid message is always acknowledged, even if forwarding it by email
// fails later on.
func (h *ContactHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var in service.ContactInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.contact.Submit(r.Context(), in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Message sent successfully"})
}
