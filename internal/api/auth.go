package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatehouse/internal/auth"
	"gatehouse/internal/captcha"
	"gatehouse/internal/db"
	"gatehouse/internal/models"
)

type AuthHandler struct {
	gate     *auth.Gate
	accounts *auth.Accounts
	sessions *auth.SessionService
	cookies  *AuthMiddleware
	pending  *pendingVerification
	captcha  captcha.Verifier
	metrics  *Metrics
}

func NewAuthHandler(
	gate *auth.Gate,
	accounts *auth.Accounts,
	sessions *auth.SessionService,
	cookies *AuthMiddleware,
	pending *pendingVerification,
	verifier captcha.Verifier,
	metrics *Metrics,
) *AuthHandler {
	if verifier == nil {
		verifier = captcha.Disabled{}
	}
	return &AuthHandler{
		gate:     gate,
		accounts: accounts,
		sessions: sessions,
		cookies:  cookies,
		pending:  pending,
		captcha:  verifier,
		metrics:  metrics,
	}
}

// POST /auth/login
type LoginRequest struct {
	Identifier      string `json:"identifier" validate:"max=254"`
	Password        string `json:"password" validate:"max=1024"`
	RememberMe      bool   `json:"remember_me"`
	CaptchaResponse string `json:"captcha_response"`
}

type SessionResponse struct {
	User      *models.User `json:"user"`
	ExpiresAt string       `json:"expiresAt"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	outcome, err := h.gate.Login(r.Context(), auth.LoginRequest{
		Identifier:      req.Identifier,
		Password:        req.Password,
		CaptchaResponse: req.CaptchaResponse,
		IP:              ClientIP(r),
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.metrics.LoginOutcome(string(outcome.Kind))

	switch outcome.Kind {
	case auth.OutcomeSuccess:
		session, err := h.sessions.Issue(outcome.User, req.RememberMe)
		if err != nil {
			slog.Error("error issuing session", "component", "api", "user_id", outcome.User.ID, "error", err)
			internalError(w)
			return
		}
		h.cookies.setSession(w, session, req.RememberMe)
		h.clearPending(w, r)
		writeJSON(w, http.StatusOK, SessionResponse{
			User:      outcome.User,
			ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		})

	case auth.OutcomeLockedOut:
		writeLockedOut(w, outcome.LockoutMinutes)

	case auth.OutcomeUnverified:
		if err := h.pending.Set(w, r, outcome.UnverifiedUserID, outcome.UnverifiedEmail); err != nil {
			slog.Warn("error saving pending verification cookie", "component", "api", "error", err)
		}
		writeError(w, http.StatusForbidden, ErrCodeUnverified, "Please verify your email address before logging in")

	default:
		writeErrorDetail(w, http.StatusUnauthorized, ErrorDetail{
			Code:    ErrCodeAuthFailed,
			Message: "Invalid username/email or password",
			Meta:    map[string]any{"remainingAttempts": outcome.RemainingAttempts},
		})
	}
}

// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clearSession(w)
	h.clearPending(w, r)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "You have been logged out"})
}

// POST /auth/signup
type SignupRequest struct {
	Username        string `json:"username" validate:"max=64"`
	Email           string `json:"email" validate:"max=254"`
	Password        string `json:"password" validate:"max=1024"`
	ConfirmPassword string `json:"confirm_password" validate:"max=1024"`
	CaptchaResponse string `json:"captcha_response"`
}

type SignupResponse struct {
	User      *models.User `json:"user"`
	EmailSent bool         `json:"emailSent"`
	Message   string       `json:"message"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.checkCaptcha(r, req.CaptchaResponse); err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := h.accounts.Signup(r.Context(), auth.SignupRequest{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.metrics.EmailDelivery("verification", result.EmailSent)

	if err := h.pending.Set(w, r, result.User.ID, result.User.Email); err != nil {
		slog.Warn("error saving pending verification cookie", "component", "api", "error", err)
	}

	message := "Account created. Check your email for a verification link."
	if !result.EmailSent {
		message = "Account created, but the verification email could not be sent. Please request a new one."
	}
	writeJSON(w, http.StatusCreated, SignupResponse{User: result.User, EmailSent: result.EmailSent, Message: message})
}

// POST /auth/resend-verification
type ResendVerificationRequest struct {
	Identifier string `json:"identifier" validate:"max=254"`
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	generic := MessageResponse{Message: "If an unverified account exists, a new verification email has been sent"}

	var subject auth.Subject
	switch userID, address, ok := h.pending.Get(r); {
	case req.Identifier != "":
		subject = auth.ByIdentifier{Identifier: req.Identifier}
	case ok:
		status, err := h.accounts.VerificationStatus(r.Context(), auth.ByID{UserID: userID})
		if errors.Is(err, db.ErrNotFound) || (err == nil && status.User.Email != address) {
			h.clearPending(w, r)
			badRequest(w, "No pending verification, please enter your username or email")
			return
		}
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		subject = auth.ByUser{User: status.User}
	default:
		badRequest(w, "identifier is required")
		return
	}

	result, err := h.accounts.ResendVerification(r.Context(), subject)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusOK, generic)
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if result.AlreadyVerified {
		h.clearPending(w, r)
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Your email address is already verified"})
		return
	}
	h.metrics.EmailDelivery("verification", result.EmailSent)
	if !result.EmailSent {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "The verification email could not be sent, please try again later"})
		return
	}
	writeJSON(w, http.StatusOK, generic)
}

// GET /auth/verify-email/{token}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	v, err := h.accounts.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.clearPending(w, r)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Your email address has been verified, you can now log in",
		"email":   v.Email,
	})
}

// POST /auth/forgot-password
type ForgotPasswordRequest struct {
	Email           string `json:"email" validate:"max=254"`
	CaptchaResponse string `json:"captcha_response"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.checkCaptcha(r, req.CaptchaResponse); err != nil {
		writeDomainError(w, r, err)
		return
	}

	err := h.accounts.ForgotPassword(r.Context(), req.Email)
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		writeDomainError(w, r, err)
		return
	}
	if err != nil {
		// The answer must not depend on whether the account exists.
		slog.Error("error handling password reset request", "component", "api", "error", err)
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "If an account exists with this email, a password reset link has been sent",
	})
}

// GET /auth/reset-password/{token}
func (h *AuthHandler) CheckResetToken(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.CheckResetToken(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// POST /auth/reset-password/{token}
type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"max=1024"`
	ConfirmPassword string `json:"confirm_password" validate:"max=1024"`
	CaptchaResponse string `json:"captcha_response"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.checkCaptcha(r, req.CaptchaResponse); err != nil {
		writeDomainError(w, r, err)
		return
	}

	err := h.accounts.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password, req.ConfirmPassword)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Your password has been reset, you can now log in"})
}

func (h *AuthHandler) checkCaptcha(r *http.Request, response string) error {
	ok, err := h.captcha.Verify(r.Context(), response, ClientIP(r))
	if err != nil {
		slog.Warn("captcha verification error", "component", "api", "error", err)
	}
	if err != nil || !ok {
		return auth.ErrCaptchaFailed
	}
	return nil
}

func (h *AuthHandler) clearPending(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.pending.Get(r); !ok {
		return
	}
	if err := h.pending.Clear(w, r); err != nil {
		slog.Warn("error clearing pending verification cookie", "component", "api", "error", err)
	}
}
