package api

import (
	"net/http"

	"gatehouse/internal/contact"
)

type ContactHandler struct {
	contacts *contact.Service
}

func NewContactHandler(contacts *contact.Service) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// POST /contact
type ContactRequest struct {
	Name    string `json:"name" validate:"max=1000"`
	Email   string `json:"email" validate:"max=1000"`
	Subject string `json:"subject" validate:"max=2000"`
	Message string `json:"message" validate:"max=20000"`
}

func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.contacts.Submit(r.Context(), contact.Submission{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Thank you for your message, we will get back to you soon"})
}
