package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatehouse/internal/captcha"
	"gatehouse/internal/db"
	"gatehouse/internal/models"
)

type OutcomeKind string

const (
	OutcomeSuccess    OutcomeKind = "success"
	OutcomeLockedOut  OutcomeKind = "locked_out"
	OutcomeUnverified OutcomeKind = "unverified"
	OutcomeInvalid    OutcomeKind = "invalid"
)

// LoginOutcome is what a renderer branches on after a login attempt. Only
// the fields relevant to Kind are set.
type LoginOutcome struct {
	Kind OutcomeKind

	User              *models.User // success
	LockoutMinutes    int          // locked_out
	UnverifiedUserID  string       // unverified
	UnverifiedEmail   string       // unverified
	RemainingAttempts int          // invalid
}

type LoginRequest struct {
	Identifier      string
	Password        string
	CaptchaResponse string
	IP              string
	UserAgent       string
}

// Gate orchestrates a login: lockout pre-check, identity lookup, the email
// verification gate, the password check and the post-failure recheck.
type Gate struct {
	users         *db.UserRepository
	ledger        *Ledger
	verifications *VerificationIssuer
	hasher        *PasswordHasher
	captcha       captcha.Verifier
	disabled      bool
	now           func() time.Time

	// dummyHash is verified against when the user does not exist so both
	// paths spend the same time in argon2.
	dummyHash string
}

type GateConfig struct {
	Users         *db.UserRepository
	Ledger        *Ledger
	Verifications *VerificationIssuer
	Hasher        *PasswordHasher
	Captcha       captcha.Verifier
	Disabled      bool
	Now           func() time.Time
}

func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Captcha == nil {
		cfg.Captcha = captcha.Disabled{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	dummy, err := cfg.Hasher.Hash("gatehouse-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("preparing dummy hash: %w", err)
	}
	return &Gate{
		users:         cfg.Users,
		ledger:        cfg.Ledger,
		verifications: cfg.Verifications,
		hasher:        cfg.Hasher,
		captcha:       cfg.Captcha,
		disabled:      cfg.Disabled,
		now:           cfg.Now,
		dummyHash:     dummy,
	}, nil
}

// Login runs one login attempt. ErrServiceDisabled, ErrCaptchaFailed and
// *ValidationError are returned before anything is recorded; all other
// results are reported through LoginOutcome.
func (g *Gate) Login(ctx context.Context, req LoginRequest) (LoginOutcome, error) {
	if g.disabled {
		return LoginOutcome{}, ErrServiceDisabled
	}

	identifier := NormalizeIdentifier(req.Identifier)
	var v ValidationError
	if identifier == "" {
		v.add("identifier", "is required")
	}
	if req.Password == "" {
		v.add("password", "is required")
	}
	if err := v.errOrNil(); err != nil {
		return LoginOutcome{}, err
	}

	ok, err := g.captcha.Verify(ctx, req.CaptchaResponse, req.IP)
	if err != nil {
		slog.Warn("captcha verification error", "component", "auth", "error", err)
	}
	if err != nil || !ok {
		return LoginOutcome{}, ErrCaptchaFailed
	}

	// Locked IPs get no credential check and no extra attempt row.
	if err := g.ledger.Check(ctx, req.IP); err != nil {
		var locked *LockedOutError
		if errors.As(err, &locked) {
			return LoginOutcome{Kind: OutcomeLockedOut, LockoutMinutes: locked.Minutes()}, nil
		}
		return LoginOutcome{}, err
	}

	user, err := g.users.FindByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return LoginOutcome{}, err
	}

	if user == nil || !user.Active {
		// Same work and same recording as a wrong password.
		_, _ = g.hasher.Verify(req.Password, g.dummyHash)
		return g.fail(ctx, req, identifier)
	}

	verified, err := g.verifications.IsVerified(ctx, user.ID, user.Email)
	if err != nil {
		return LoginOutcome{}, err
	}
	if !verified {
		return LoginOutcome{
			Kind:             OutcomeUnverified,
			UnverifiedUserID: user.ID,
			UnverifiedEmail:  user.Email,
		}, nil
	}

	match, err := g.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		slog.Error("stored password hash unreadable", "component", "auth", "user_id", user.ID, "error", err)
	}
	if !match {
		return g.fail(ctx, req, identifier)
	}

	if _, err := g.ledger.Record(ctx, Attempt{IP: req.IP, Identifier: identifier, Success: true, UserAgent: req.UserAgent}); err != nil {
		return LoginOutcome{}, err
	}
	now := g.now().UTC()
	if err := g.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return LoginOutcome{}, err
	}
	user.LastLoginAt = &now

	slog.Info("login succeeded", "component", "auth", "user_id", user.ID, "ip", req.IP)
	return LoginOutcome{Kind: OutcomeSuccess, User: user}, nil
}

// fail records a failed attempt and recomputes lockout right away.
func (g *Gate) fail(ctx context.Context, req LoginRequest, identifier string) (LoginOutcome, error) {
	if _, err := g.ledger.Record(ctx, Attempt{IP: req.IP, Identifier: identifier, UserAgent: req.UserAgent}); err != nil {
		return LoginOutcome{}, err
	}

	if err := g.ledger.Check(ctx, req.IP); err != nil {
		var locked *LockedOutError
		if errors.As(err, &locked) {
			slog.Warn("ip locked out", "component", "auth", "ip", req.IP, "minutes", locked.Minutes())
			return LoginOutcome{Kind: OutcomeLockedOut, LockoutMinutes: locked.Minutes()}, nil
		}
		return LoginOutcome{}, err
	}

	remaining, err := g.ledger.RemainingAttempts(ctx, req.IP)
	if err != nil {
		return LoginOutcome{}, err
	}
	return LoginOutcome{Kind: OutcomeInvalid, RemainingAttempts: remaining}, nil
}
