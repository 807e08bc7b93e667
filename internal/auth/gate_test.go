package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginLocksOutAfterMaxFailures(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "alice", "alice@example.com")
	gate := f.gate(t, false)
	ctx := context.Background()

	req := LoginRequest{Identifier: "alice", Password: "wrong-password", IP: "10.0.0.1"}
	for i := 1; i <= 4; i++ {
		out, err := gate.Login(ctx, req)
		if err != nil {
			t.Fatalf("Login() #%d error = %v", i, err)
		}
		if out.Kind != OutcomeInvalid {
			t.Fatalf("Login() #%d kind = %q, want %q", i, out.Kind, OutcomeInvalid)
		}
		if out.RemainingAttempts != 5-i {
			t.Fatalf("Login() #%d remaining = %d, want %d", i, out.RemainingAttempts, 5-i)
		}
		f.clock.Advance(time.Minute)
	}

	// The fifth failure trips the lockout immediately.
	out, err := gate.Login(ctx, req)
	if err != nil {
		t.Fatalf("Login() #5 error = %v", err)
	}
	if out.Kind != OutcomeLockedOut {
		t.Fatalf("Login() #5 kind = %q, want %q", out.Kind, OutcomeLockedOut)
	}
	if out.LockoutMinutes != 15 {
		t.Fatalf("Login() #5 minutes = %d, want 15", out.LockoutMinutes)
	}

	// The sixth attempt, even with the right password, short-circuits and
	// adds no row.
	req.Password = strongPassword
	out, err = gate.Login(ctx, req)
	if err != nil {
		t.Fatalf("Login() #6 error = %v", err)
	}
	if out.Kind != OutcomeLockedOut {
		t.Fatalf("Login() #6 kind = %q, want %q", out.Kind, OutcomeLockedOut)
	}
	if got := f.attemptCount(t); got != 5 {
		t.Fatalf("attempt rows = %d, want 5", got)
	}

	// Another IP is unaffected.
	out, err = gate.Login(ctx, LoginRequest{Identifier: "alice", Password: strongPassword, IP: "10.0.0.2"})
	if err != nil {
		t.Fatalf("Login() other ip error = %v", err)
	}
	if out.Kind != OutcomeSuccess {
		t.Fatalf("Login() other ip kind = %q, want %q", out.Kind, OutcomeSuccess)
	}
}

func TestLoginLockoutDecaysWithWindow(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "alice", "alice@example.com")
	gate := f.gate(t, false)
	ctx := context.Background()

	bad := LoginRequest{Identifier: "alice", Password: "wrong-password", IP: "10.0.0.1"}
	for range 5 {
		if _, err := gate.Login(ctx, bad); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
	}
	locked, err := f.ledger.IsLocked(ctx, "10.0.0.1")
	if err != nil || !locked {
		t.Fatalf("IsLocked() = %v, %v, want true, nil", locked, err)
	}

	f.clock.Advance(15*time.Minute + time.Second)

	locked, err = f.ledger.IsLocked(ctx, "10.0.0.1")
	if err != nil || locked {
		t.Fatalf("IsLocked() after window = %v, %v, want false, nil", locked, err)
	}
	out, err := gate.Login(ctx, LoginRequest{Identifier: "alice", Password: strongPassword, IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.Kind != OutcomeSuccess {
		t.Fatalf("Login() kind = %q, want %q", out.Kind, OutcomeSuccess)
	}
}

func TestLoginSuccessDoesNotResetFailures(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "alice", "alice@example.com")
	gate := f.gate(t, false)
	ctx := context.Background()

	for range 3 {
		if _, err := gate.Login(ctx, LoginRequest{Identifier: "alice", Password: "nope-nope", IP: "10.0.0.1"}); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
	}
	out, err := gate.Login(ctx, LoginRequest{Identifier: "ALICE@example.com", Password: strongPassword, IP: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.Kind != OutcomeSuccess || out.User == nil || out.User.LastLoginAt == nil {
		t.Fatalf("Login() = %+v, want success with last login set", out)
	}

	count, err := f.ledger.FailedCount(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("FailedCount() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("FailedCount() = %d, want 3 after a success", count)
	}
	if got := f.attemptCount(t); got != 4 {
		t.Fatalf("attempt rows = %d, want 4", got)
	}
}

func TestLoginUnverifiedRecordsNothing(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "alice", "a@b.com")
	gate := f.gate(t, false)
	ctx := context.Background()

	rows, err := f.repos.Verifications.ListByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(rows) != 1 || rows[0].IsVerified {
		t.Fatalf("verifications = %+v, want one unverified row", rows)
	}
	if want := f.clock.Now().Add(24 * time.Hour); !rows[0].ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", rows[0].ExpiresAt, want)
	}

	before := f.attemptCount(t)
	out, err := gate.Login(ctx, LoginRequest{Identifier: "alice", Password: "anything-at-all", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.Kind != OutcomeUnverified {
		t.Fatalf("Login() kind = %q, want %q", out.Kind, OutcomeUnverified)
	}
	if out.UnverifiedUserID != user.ID || out.UnverifiedEmail != "a@b.com" {
		t.Fatalf("Login() unverified = (%q, %q), want (%q, a@b.com)", out.UnverifiedUserID, out.UnverifiedEmail, user.ID)
	}
	if got := f.attemptCount(t); got != before {
		t.Fatalf("attempt rows = %d, want unchanged %d", got, before)
	}
}

func TestLoginUnknownUserCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	gate := f.gate(t, false)

	out, err := gate.Login(context.Background(), LoginRequest{Identifier: "ghost", Password: "whatever", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.Kind != OutcomeInvalid || out.RemainingAttempts != 4 {
		t.Fatalf("Login() = %+v, want invalid with 4 remaining", out)
	}
	if got := f.attemptCount(t); got != 1 {
		t.Fatalf("attempt rows = %d, want 1", got)
	}
}

func TestLoginInactiveUserCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	user := f.verifiedUser(t, "alice", "alice@example.com")
	if _, err := f.repos.Users.ToggleActive(context.Background(), user.ID); err != nil {
		t.Fatalf("ToggleActive() error = %v", err)
	}

	out, err := f.gate(t, false).Login(context.Background(), LoginRequest{Identifier: "alice", Password: strongPassword, IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.Kind != OutcomeInvalid {
		t.Fatalf("Login() kind = %q, want %q", out.Kind, OutcomeInvalid)
	}
}

func TestLoginShortCircuitsBeforeRecording(t *testing.T) {
	tests := []struct {
		name     string
		disabled bool
		captcha  bool
		req      LoginRequest
		wantErr  error
	}{
		{
			name:     "database_disabled",
			disabled: true,
			captcha:  true,
			req:      LoginRequest{Identifier: "alice", Password: "x", IP: "10.0.0.1"},
			wantErr:  ErrServiceDisabled,
		},
		{
			name:    "captcha_failed",
			captcha: false,
			req:     LoginRequest{Identifier: "alice", Password: "x", IP: "10.0.0.1"},
			wantErr: ErrCaptchaFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.captcha.pass = tt.captcha

			_, err := f.gate(t, tt.disabled).Login(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if got := f.attemptCount(t); got != 0 {
				t.Fatalf("attempt rows = %d, want 0", got)
			}
		})
	}
}

func TestLoginRequiresFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate(t, false).Login(context.Background(), LoginRequest{IP: "10.0.0.1"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Login() error = %v, want *ValidationError", err)
	}
	if _, ok := verr.Fields["identifier"]; !ok {
		t.Fatalf("Fields = %v, want identifier entry", verr.Fields)
	}
	if f.captcha.calls != 0 {
		t.Fatalf("captcha calls = %d, want 0", f.captcha.calls)
	}
}
