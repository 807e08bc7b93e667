package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"gatehouse/internal/admin"
	"gatehouse/internal/auth"
	"gatehouse/internal/constants"
	"gatehouse/internal/contact"
	"gatehouse/internal/db"
)

const (
	ErrCodeInvalidRequest    = constants.ErrCodeInvalidRequest
	ErrCodeValidationFailed  = constants.ErrCodeValidationFailed
	ErrCodeAuthFailed        = constants.ErrCodeAuthFailed
	ErrCodeLockedOut         = constants.ErrCodeLockedOut
	ErrCodeUnverified        = constants.ErrCodeUnverified
	ErrCodeTokenInvalid      = constants.ErrCodeTokenInvalid
	ErrCodeTokenExpired      = constants.ErrCodeTokenExpired
	ErrCodeTokenUsed         = constants.ErrCodeTokenConsumed
	ErrCodeCaptchaFailed     = constants.ErrCodeCaptchaFailed
	ErrCodeServiceDisabled   = constants.ErrCodeServiceDisabled
	ErrCodeUnauthorized      = constants.ErrCodeUnauthorized
	ErrCodeForbidden         = constants.ErrCodeForbidden
	ErrCodeSelfModification  = constants.ErrCodeSelfModify
	ErrCodeNotFound          = constants.ErrCodeNotFound
	ErrCodeConflict          = constants.ErrCodeConflict
	ErrCodeInternal          = constants.ErrCodeInternal
	ErrCodeRateLimitExceeded = constants.ErrCodeRateLimited
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Meta    map[string]any    `json:"meta,omitempty"`
}

// MessageResponse is the body of endpoints that only report an outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func writeErrorDetail(w http.ResponseWriter, status int, detail ErrorDetail) {
	writeJSON(w, status, ErrorResponse{Error: detail})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func forbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func serviceDisabled(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeServiceDisabled, "This service is temporarily unavailable")
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "An internal error occurred")
}

// writeDomainError maps errors returned by the service packages to the
// envelope. Anything unrecognized is logged and reported as INTERNAL_ERROR.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *auth.ValidationError
	var locked *auth.LockedOutError

	switch {
	case errors.As(err, &verr):
		writeErrorDetail(w, http.StatusUnprocessableEntity, ErrorDetail{
			Code:    ErrCodeValidationFailed,
			Message: "Please correct the highlighted fields",
			Fields:  verr.Fields,
		})
	case errors.As(err, &locked):
		writeLockedOut(w, locked.Minutes())
	case errors.Is(err, auth.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, ErrCodeTokenInvalid, "This link is invalid")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusGone, ErrCodeTokenExpired, "This link has expired")
	case errors.Is(err, auth.ErrTokenConsumed):
		writeError(w, http.StatusConflict, ErrCodeTokenUsed, "This link has already been used")
	case errors.Is(err, auth.ErrCaptchaFailed):
		writeError(w, http.StatusBadRequest, ErrCodeCaptchaFailed, "Bot verification failed, please try again")
	case errors.Is(err, auth.ErrServiceDisabled), errors.Is(err, contact.ErrStoreDisabled):
		serviceDisabled(w)
	case errors.Is(err, admin.ErrSelfModification):
		writeError(w, http.StatusForbidden, ErrCodeSelfModification, "You cannot change your own account flags")
	case errors.Is(err, admin.ErrUnknownLogType):
		notFound(w, "Unknown log type")
	case errors.Is(err, db.ErrNotFound):
		notFound(w, "Not found")
	default:
		slog.Error("request failed", "component", "api", "method", r.Method, "path", r.URL.Path, "error", err)
		internalError(w)
	}
}

func writeLockedOut(w http.ResponseWriter, minutes int) {
	writeErrorDetail(w, http.StatusTooManyRequests, ErrorDetail{
		Code:    ErrCodeLockedOut,
		Message: "Too many failed login attempts. Please try again later.",
		Meta:    map[string]any{"lockoutMinutes": minutes},
	})
}
