package api

import (
	"net/http"

	"gatehouse/internal/auth"
	"gatehouse/internal/models"
)

// ProfileHandler serves the caller's own account.
type ProfileHandler struct {
	accounts *auth.Accounts
	metrics  *Metrics
}

func NewProfileHandler(accounts *auth.Accounts, metrics *Metrics) *ProfileHandler {
	return &ProfileHandler{accounts: accounts, metrics: metrics}
}

type ProfileResponse struct {
	User     *models.User `json:"user"`
	Verified bool         `json:"verified"`
}

// GET /profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r)
	if id == nil {
		unauthorized(w, "Please log in to continue")
		return
	}

	status, err := h.accounts.VerificationStatus(r.Context(), auth.ByID{UserID: id.UserID})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: status.User, Verified: status.Verified})
}

// POST /profile
type UpdateProfileRequest struct {
	Username        string `json:"username" validate:"max=64"`
	Email           string `json:"email" validate:"max=254"`
	CurrentPassword string `json:"current_password" validate:"max=1024"`
	NewPassword     string `json:"new_password" validate:"max=1024"`
	ConfirmPassword string `json:"confirm_password" validate:"max=1024"`
}

type UpdateProfileResponse struct {
	User                 *models.User `json:"user"`
	VerificationRequired bool         `json:"verificationRequired"`
	EmailSent            bool         `json:"emailSent"`
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r)
	if id == nil {
		unauthorized(w, "Please log in to continue")
		return
	}

	var req UpdateProfileRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.accounts.UpdateProfile(r.Context(), *id, auth.ProfileUpdate{
		Username:        req.Username,
		Email:           req.Email,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if result.VerificationRequired {
		h.metrics.EmailDelivery("verification", result.EmailSent)
	}

	writeJSON(w, http.StatusOK, UpdateProfileResponse{
		User:                 result.User,
		VerificationRequired: result.VerificationRequired,
		EmailSent:            result.EmailSent,
	})
}
