package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestSignupVerifyLoginProfile(t *testing.T) {
	env := newTestEnv(t, false)
	browser := env.client(t)

	status, body := env.do(t, browser, http.MethodPost, "/auth/signup", map[string]any{
		"username":         "Alice",
		"email":            "Alice@Example.com",
		"password":         strongPassword,
		"confirm_password": strongPassword,
	})
	if status != http.StatusCreated {
		t.Fatalf("signup status = %d, want %d, body=%q", status, http.StatusCreated, body)
	}
	var signup SignupResponse
	if err := json.Unmarshal(body, &signup); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if signup.User.Username != "alice" || !signup.EmailSent {
		t.Fatalf("signup = %+v, want lower-cased user and email sent", signup)
	}

	// Not verified yet: refused, and nothing counts against the IP.
	status, body = env.do(t, browser, http.MethodPost, "/auth/login", map[string]any{
		"identifier": "alice", "password": strongPassword,
	})
	if status != http.StatusForbidden || errorCode(t, body).Code != ErrCodeUnverified {
		t.Fatalf("unverified login = %d %q, want 403 %s", status, body, ErrCodeUnverified)
	}

	token := env.sender.lastToken(t, "/auth/verify-email/")
	status, body = env.do(t, browser, http.MethodGet, "/auth/verify-email/"+token, nil)
	if status != http.StatusOK {
		t.Fatalf("verify status = %d, body=%q", status, body)
	}
	status, body = env.do(t, browser, http.MethodGet, "/auth/verify-email/"+token, nil)
	if status != http.StatusConflict || errorCode(t, body).Code != ErrCodeTokenUsed {
		t.Fatalf("second verify = %d %q, want 409 %s", status, body, ErrCodeTokenUsed)
	}

	env.login(t, browser, "alice@example.com")

	status, body = env.do(t, browser, http.MethodGet, "/profile", nil)
	if status != http.StatusOK {
		t.Fatalf("profile status = %d, body=%q", status, body)
	}
	var profile ProfileResponse
	if err := json.Unmarshal(body, &profile); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if !profile.Verified || profile.User.Username != "alice" {
		t.Fatalf("profile = %+v, want verified alice", profile)
	}

	status, _ = env.do(t, browser, http.MethodPost, "/auth/logout", nil)
	if status != http.StatusOK {
		t.Fatalf("logout status = %d", status)
	}
	status, _ = env.do(t, browser, http.MethodGet, "/profile", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("profile after logout status = %d, want %d", status, http.StatusUnauthorized)
	}
}

func TestSignupValidationEnvelope(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, env.client(t), http.MethodPost, "/auth/signup", map[string]any{
		"username":         "a!",
		"email":            "nope",
		"password":         "short",
		"confirm_password": "short",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d, body=%q", status, http.StatusUnprocessableEntity, body)
	}
	detail := errorCode(t, body)
	if detail.Code != ErrCodeValidationFailed {
		t.Fatalf("code = %q, want %q", detail.Code, ErrCodeValidationFailed)
	}
	for _, field := range []string{"username", "email", "password"} {
		if _, ok := detail.Fields[field]; !ok {
			t.Fatalf("fields = %v, want entry for %q", detail.Fields, field)
		}
	}
}

func TestLoginLockoutOverHTTP(t *testing.T) {
	env := newTestEnv(t, false)
	env.verifiedUser(t, "bob", false)
	browser := env.client(t)

	bad := map[string]any{"identifier": "bob", "password": "Wrong-Password-1"}
	for i := 1; i <= 4; i++ {
		status, body := env.do(t, browser, http.MethodPost, "/auth/login", bad)
		detail := errorCode(t, body)
		if status != http.StatusUnauthorized || detail.Code != ErrCodeAuthFailed {
			t.Fatalf("attempt %d = %d %q, want 401 %s", i, status, body, ErrCodeAuthFailed)
		}
		if got := detail.Meta["remainingAttempts"]; got != float64(5-i) {
			t.Fatalf("attempt %d remainingAttempts = %v, want %d", i, got, 5-i)
		}
	}

	status, body := env.do(t, browser, http.MethodPost, "/auth/login", bad)
	detail := errorCode(t, body)
	if status != http.StatusTooManyRequests || detail.Code != ErrCodeLockedOut {
		t.Fatalf("fifth attempt = %d %q, want 429 %s", status, body, ErrCodeLockedOut)
	}
	if got := detail.Meta["lockoutMinutes"]; got != float64(15) {
		t.Fatalf("lockoutMinutes = %v, want 15", got)
	}

	// The right password does not get through while locked.
	status, body = env.do(t, browser, http.MethodPost, "/auth/login", map[string]any{
		"identifier": "bob", "password": strongPassword,
	})
	if status != http.StatusTooManyRequests {
		t.Fatalf("locked login status = %d, body=%q", status, body)
	}

	count, err := env.repos.LoginAttempts.CountAll(context.Background())
	if err != nil {
		t.Fatalf("CountAll() error = %v", err)
	}
	if count != 5 {
		t.Fatalf("attempt rows = %d, want 5", count)
	}
}

func TestResendUsesPendingCookie(t *testing.T) {
	env := newTestEnv(t, false)
	browser := env.client(t)

	status, body := env.do(t, browser, http.MethodPost, "/auth/signup", map[string]any{
		"username": "carol", "email": "carol@example.com",
		"password": strongPassword, "confirm_password": strongPassword,
	})
	if status != http.StatusCreated {
		t.Fatalf("signup status = %d, body=%q", status, body)
	}
	first := env.sender.lastToken(t, "/auth/verify-email/")

	status, body = env.do(t, browser, http.MethodPost, "/auth/resend-verification", map[string]any{})
	if status != http.StatusOK {
		t.Fatalf("resend status = %d, body=%q", status, body)
	}
	if env.sender.count() != 2 {
		t.Fatalf("emails sent = %d, want 2", env.sender.count())
	}
	second := env.sender.lastToken(t, "/auth/verify-email/")
	if second == first {
		t.Fatal("resend reused the old token")
	}

	// The superseded token no longer exists.
	status, body = env.do(t, browser, http.MethodGet, "/auth/verify-email/"+first, nil)
	if status != http.StatusNotFound || errorCode(t, body).Code != ErrCodeTokenInvalid {
		t.Fatalf("old token = %d %q, want 404 %s", status, body, ErrCodeTokenInvalid)
	}

	// A fresh browser has no pending cookie and must name the account.
	status, _ = env.do(t, env.client(t), http.MethodPost, "/auth/resend-verification", map[string]any{})
	if status != http.StatusBadRequest {
		t.Fatalf("resend without cookie status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, false)
	env.verifiedUser(t, "dave", false)
	browser := env.client(t)

	status, body := env.do(t, browser, http.MethodPost, "/auth/forgot-password", map[string]any{"email": "dave@example.com"})
	if status != http.StatusOK {
		t.Fatalf("forgot status = %d, body=%q", status, body)
	}
	var known MessageResponse
	_ = json.Unmarshal(body, &known)

	// Unknown addresses get the identical answer and no email.
	sent := env.sender.count()
	status, body = env.do(t, browser, http.MethodPost, "/auth/forgot-password", map[string]any{"email": "nobody@example.com"})
	var unknown MessageResponse
	_ = json.Unmarshal(body, &unknown)
	if status != http.StatusOK || unknown.Message != known.Message {
		t.Fatalf("unknown forgot = %d %q, want same answer as known", status, body)
	}
	if env.sender.count() != sent {
		t.Fatal("unknown address triggered an email")
	}

	token := env.sender.lastToken(t, "/auth/reset-password/")
	status, body = env.do(t, browser, http.MethodGet, "/auth/reset-password/"+token, nil)
	if status != http.StatusOK {
		t.Fatalf("check token status = %d, body=%q", status, body)
	}

	newPassword := "Marmalade-Harbor-77?"
	reset := map[string]any{"password": newPassword, "confirm_password": newPassword}
	status, body = env.do(t, browser, http.MethodPost, "/auth/reset-password/"+token, reset)
	if status != http.StatusOK {
		t.Fatalf("reset status = %d, body=%q", status, body)
	}
	status, body = env.do(t, browser, http.MethodPost, "/auth/reset-password/"+token, reset)
	if status != http.StatusConflict || errorCode(t, body).Code != ErrCodeTokenUsed {
		t.Fatalf("second reset = %d %q, want 409 %s", status, body, ErrCodeTokenUsed)
	}

	status, _ = env.do(t, browser, http.MethodPost, "/auth/login", map[string]any{"identifier": "dave", "password": newPassword})
	if status != http.StatusOK {
		t.Fatalf("login with new password status = %d", status)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	env := newTestEnv(t, false)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/auth/login", strings.NewReader(`{"identifier":"x","extra":1}`))
	if err != nil {
		t.Fatalf("http.NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
