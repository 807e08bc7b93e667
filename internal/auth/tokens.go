package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatehouse/internal/constants"
	"gatehouse/internal/db"
	"gatehouse/internal/email"
	"gatehouse/internal/models"
)

// generateToken returns a URL-safe random token with TokenRandomBytes of entropy.
func generateToken() (string, error) {
	b := make([]byte, constants.TokenRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IssuerConfig is shared by both token families.
type IssuerConfig struct {
	TTL     time.Duration
	BaseURL string
	AppName string
	Now     func() time.Time
}

func (c IssuerConfig) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

func (c IssuerConfig) link(path, token string) string {
	return strings.TrimRight(c.BaseURL, "/") + path + token
}

// VerificationIssuer manages email verification tokens. A token moves from
// pending to verified once; expiry is computed from ExpiresAt, never stored.
type VerificationIssuer struct {
	database      *db.DB
	verifications *db.EmailVerificationRepository
	cfg           IssuerConfig
}

func NewVerificationIssuer(database *db.DB, repos *db.Repositories, cfg IssuerConfig) *VerificationIssuer {
	if cfg.TTL == 0 {
		cfg.TTL = constants.DefaultVerificationTTL
	}
	return &VerificationIssuer{database: database, verifications: repos.Verifications, cfg: cfg}
}

type IssuedVerification struct {
	Verification *models.EmailVerification
	Message      email.Message
}

// Issue creates a verification token for the user's current email and
// supersedes any unverified token for the same (user, email) pair.
func (i *VerificationIssuer) Issue(ctx context.Context, user *models.User) (*IssuedVerification, error) {
	var issued *IssuedVerification
	err := i.database.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		issued, err = i.IssueTx(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// IssueTx is Issue inside a caller-owned transaction, so account creation
// and token issuance commit together.
func (i *VerificationIssuer) IssueTx(ctx context.Context, tx *sql.Tx, user *models.User) (*IssuedVerification, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := i.cfg.now()

	v, err := i.verifications.WithTx(tx).Supersede(ctx, db.CreateVerificationParams{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(i.cfg.TTL),
	})
	if err != nil {
		return nil, fmt.Errorf("issuing verification: %w", err)
	}

	return &IssuedVerification{
		Verification: v,
		Message:      i.message(user, token),
	}, nil
}

func (i *VerificationIssuer) message(user *models.User, token string) email.Message {
	link := i.cfg.link("/auth/verify-email/", token)
	return email.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Verify your %s email address", i.cfg.AppName),
		Body: fmt.Sprintf(`Hello %s,

Please confirm your email address by opening the link below:

    %s

This link expires in %d hours.

If you did not create an account, you can ignore this email.`, user.Username, link, int(i.cfg.TTL.Hours())),
	}
}

// Validate looks the token up and classifies it. A verified token reports
// ErrTokenConsumed even after its TTL has passed.
func (i *VerificationIssuer) Validate(ctx context.Context, token string) (*models.EmailVerification, error) {
	v, err := i.verifications.FindByToken(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if v.IsVerified {
		return v, ErrTokenConsumed
	}
	if v.IsExpired(i.cfg.now()) {
		return v, ErrTokenExpired
	}
	return v, nil
}

// Consume marks a validated verification as verified. The update is
// conditional, so of two racing callers only one succeeds; the other gets
// the state the winner left behind.
func (i *VerificationIssuer) Consume(ctx context.Context, v *models.EmailVerification) error {
	ok, err := i.verifications.MarkVerifiedIfPending(ctx, v.ID, i.cfg.now())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := i.Validate(ctx, v.Token); err != nil {
		return err
	}
	return ErrTokenConsumed
}

// Verify is Validate followed by Consume.
func (i *VerificationIssuer) Verify(ctx context.Context, token string) (*models.EmailVerification, error) {
	v, err := i.Validate(ctx, token)
	if err != nil {
		return v, err
	}
	if err := i.Consume(ctx, v); err != nil {
		return v, err
	}
	return v, nil
}

// IsVerified reports whether userID has verified the given address.
func (i *VerificationIssuer) IsVerified(ctx context.Context, userID, address string) (bool, error) {
	return i.verifications.IsVerified(ctx, userID, address)
}

// ResetIssuer manages password reset tokens. At most one token per user is
// active; issuing a new one deactivates the rest.
type ResetIssuer struct {
	database    *db.DB
	resetTokens *db.PasswordResetTokenRepository
	cfg         IssuerConfig
}

func NewResetIssuer(database *db.DB, repos *db.Repositories, cfg IssuerConfig) *ResetIssuer {
	if cfg.TTL == 0 {
		cfg.TTL = constants.DefaultResetTTL
	}
	return &ResetIssuer{database: database, resetTokens: repos.ResetTokens, cfg: cfg}
}

type IssuedReset struct {
	Token   *models.PasswordResetToken
	Message email.Message
}

func (i *ResetIssuer) Issue(ctx context.Context, user *models.User) (*IssuedReset, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := i.cfg.now()

	var t *models.PasswordResetToken
	err = i.database.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = i.resetTokens.WithTx(tx).Replace(ctx, db.CreateResetTokenParams{
			UserID:    user.ID,
			Token:     token,
			CreatedAt: now,
			ExpiresAt: now.Add(i.cfg.TTL),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("issuing reset token: %w", err)
	}

	return &IssuedReset{Token: t, Message: i.message(user, token)}, nil
}

func (i *ResetIssuer) message(user *models.User, token string) email.Message {
	link := i.cfg.link("/auth/reset-password/", token)
	return email.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Reset your %s password", i.cfg.AppName),
		Body: fmt.Sprintf(`Hello %s,

A password reset was requested for your account. Open the link below to choose a new password:

    %s

This link expires in %d minutes and can be used once.

If you did not request a reset, you can ignore this email.`, user.Username, link, int(i.cfg.TTL.Minutes())),
	}
}

// Validate classifies a reset token. Used tokens report ErrTokenConsumed;
// superseded tokens that were never used report ErrTokenNotFound.
func (i *ResetIssuer) Validate(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	t, err := i.resetTokens.FindByToken(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	switch {
	case t.UsedAt != nil:
		return t, ErrTokenConsumed
	case !t.Active:
		return t, ErrTokenNotFound
	case !i.cfg.now().Before(t.ExpiresAt):
		return t, ErrTokenExpired
	}
	return t, nil
}

// Consume marks token used and runs apply for the owning user in the same
// transaction. If apply fails the token stays usable. Racing callers are
// serialized by the store; the losers get the classified token state.
func (i *ResetIssuer) Consume(ctx context.Context, token string, apply func(tx *sql.Tx, userID string) error) (string, error) {
	var userID string
	err := i.database.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		userID, err = i.resetTokens.WithTx(tx).ConsumeValid(ctx, token, i.cfg.now())
		if err != nil {
			return err
		}
		if apply == nil {
			return nil
		}
		return apply(tx, userID)
	})
	if errors.Is(err, db.ErrNotFound) && userID == "" {
		if _, verr := i.Validate(ctx, token); verr != nil {
			return "", verr
		}
		return "", ErrTokenConsumed
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}
