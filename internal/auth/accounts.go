package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatehouse/internal/db"
	"gatehouse/internal/email"
	"gatehouse/internal/models"
)

// Accounts covers the account flows around login: signup, verification,
// password reset and profile edits. Notifications are handed to the email
// sender after the store work commits; a send failure never undoes it.
type Accounts struct {
	database      *db.DB
	users         *db.UserRepository
	verifications *VerificationIssuer
	resets        *ResetIssuer
	hasher        *PasswordHasher
	sender        email.Sender
	now           func() time.Time
}

type AccountsConfig struct {
	DB            *db.DB
	Users         *db.UserRepository
	Verifications *VerificationIssuer
	Resets        *ResetIssuer
	Hasher        *PasswordHasher
	Sender        email.Sender
	Now           func() time.Time
}

func NewAccounts(cfg AccountsConfig) *Accounts {
	if cfg.Sender == nil {
		cfg.Sender = email.NoopSender{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Accounts{
		database:      cfg.DB,
		users:         cfg.Users,
		verifications: cfg.Verifications,
		resets:        cfg.Resets,
		hasher:        cfg.Hasher,
		sender:        cfg.Sender,
		now:           cfg.Now,
	}
}

type SignupRequest struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

type SignupResult struct {
	User      *models.User
	EmailSent bool
}

// Signup validates input, creates the user and its first verification token
// in one transaction, then sends the verification email.
func (a *Accounts) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	username := NormalizeUsername(req.Username)
	address := NormalizeEmail(req.Email)

	if err := ValidateSignup(username, address, req.Password, req.ConfirmPassword); err != nil {
		return nil, err
	}
	if err := a.checkAvailable(ctx, "", username, address); err != nil {
		return nil, err
	}

	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	var user *models.User
	var issued *IssuedVerification
	err = a.database.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		user, err = a.users.WithTx(tx).Create(ctx, db.CreateUserParams{
			Username:     username,
			Email:        address,
			PasswordHash: hash,
			CreatedAt:    a.now(),
		})
		if err != nil {
			return err
		}
		issued, err = a.verifications.IssueTx(ctx, tx, user)
		return err
	})
	if err != nil {
		if dup := duplicateFieldError(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}

	slog.Info("user signed up", "component", "auth", "user_id", user.ID)
	sent := email.Deliver(ctx, a.sender, issued.Message)
	return &SignupResult{User: user, EmailSent: sent}, nil
}

// CreateVerifiedUser provisions an account whose email counts as verified,
// for operators bootstrapping the first admin.
func (a *Accounts) CreateVerifiedUser(ctx context.Context, req SignupRequest, isAdmin bool) (*models.User, error) {
	username := NormalizeUsername(req.Username)
	address := NormalizeEmail(req.Email)

	if err := ValidateSignup(username, address, req.Password, req.ConfirmPassword); err != nil {
		return nil, err
	}

	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := a.now()
	var user *models.User
	err = a.database.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		user, err = a.users.WithTx(tx).Create(ctx, db.CreateUserParams{
			Username:     username,
			Email:        address,
			PasswordHash: hash,
			IsAdmin:      isAdmin,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		token, err := generateToken()
		if err != nil {
			return err
		}
		return db.NewEmailVerificationRepository(tx).CreateVerified(ctx, db.CreateVerificationParams{
			UserID:    user.ID,
			Email:     address,
			Token:     token,
			CreatedAt: now,
			ExpiresAt: now,
		})
	})
	if err != nil {
		if dup := duplicateFieldError(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return user, nil
}

type VerificationStatus struct {
	User     *models.User
	Verified bool
}

// VerificationStatus resolves subject and reports whether its current email
// is verified.
func (a *Accounts) VerificationStatus(ctx context.Context, subject Subject) (*VerificationStatus, error) {
	user, err := resolveSubject(ctx, a.users, subject)
	if err != nil {
		return nil, err
	}
	verified, err := a.verifications.IsVerified(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &VerificationStatus{User: user, Verified: verified}, nil
}

type ResendResult struct {
	AlreadyVerified bool
	EmailSent       bool
}

// ResendVerification supersedes the outstanding token for subject and sends
// a fresh one. Unknown subjects surface as db.ErrNotFound.
func (a *Accounts) ResendVerification(ctx context.Context, subject Subject) (*ResendResult, error) {
	status, err := a.VerificationStatus(ctx, subject)
	if err != nil {
		return nil, err
	}
	if status.Verified {
		return &ResendResult{AlreadyVerified: true}, nil
	}

	issued, err := a.verifications.Issue(ctx, status.User)
	if err != nil {
		return nil, err
	}
	return &ResendResult{EmailSent: email.Deliver(ctx, a.sender, issued.Message)}, nil
}

// VerifyEmail consumes a verification token. Failures are ErrTokenNotFound,
// ErrTokenExpired or ErrTokenConsumed.
func (a *Accounts) VerifyEmail(ctx context.Context, token string) (*models.EmailVerification, error) {
	v, err := a.verifications.Verify(ctx, token)
	if err != nil {
		return v, err
	}
	slog.Info("email verified", "component", "auth", "user_id", v.UserID)
	return v, nil
}

// ForgotPassword issues and sends a reset token when address belongs to an
// active account. Callers answer identically whatever happens here.
func (a *Accounts) ForgotPassword(ctx context.Context, address string) error {
	address = NormalizeEmail(address)
	var v ValidationError
	checkEmail(&v, address)
	if err := v.errOrNil(); err != nil {
		return err
	}

	user, err := a.users.FindByEmail(ctx, address)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !user.Active {
		return nil
	}

	issued, err := a.resets.Issue(ctx, user)
	if err != nil {
		return err
	}
	email.Deliver(ctx, a.sender, issued.Message)
	return nil
}

// CheckResetToken validates a reset token without consuming it.
func (a *Accounts) CheckResetToken(ctx context.Context, token string) error {
	_, err := a.resets.Validate(ctx, token)
	return err
}

// ResetPassword validates the new password against the token owner and then
// consumes the token and stores the new hash in one transaction.
func (a *Accounts) ResetPassword(ctx context.Context, token, password, confirm string) error {
	t, err := a.resets.Validate(ctx, token)
	if err != nil {
		return err
	}
	user, err := a.users.FindByID(ctx, t.UserID)
	if err != nil {
		return err
	}
	if err := ValidateNewPassword(password, confirm, user.Username, user.Email); err != nil {
		return err
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	userID, err := a.resets.Consume(ctx, token, func(tx *sql.Tx, userID string) error {
		return a.users.WithTx(tx).UpdatePassword(ctx, userID, hash)
	})
	if err != nil {
		return err
	}

	slog.Info("password reset", "component", "auth", "user_id", userID)
	return nil
}

type ProfileUpdate struct {
	Username        string
	Email           string
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

type ProfileResult struct {
	User                 *models.User
	VerificationRequired bool
	EmailSent            bool
}

// UpdateProfile applies a profile edit for the caller after checking the
// current password. Changing the email issues a verification for the new
// address; the account stays unverified until it is consumed.
func (a *Accounts) UpdateProfile(ctx context.Context, id models.Identity, req ProfileUpdate) (*ProfileResult, error) {
	user, err := a.users.FindByID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}

	username := NormalizeUsername(req.Username)
	address := NormalizeEmail(req.Email)

	var v ValidationError
	checkUsername(&v, username)
	checkEmail(&v, address)
	if req.NewPassword != "" {
		checkPassword(&v, "new_password", req.NewPassword, req.ConfirmPassword, username, address)
	}
	if req.CurrentPassword == "" {
		v.add("current_password", "is required")
	} else if ok, _ := a.hasher.Verify(req.CurrentPassword, user.PasswordHash); !ok {
		v.add("current_password", "is incorrect")
	}
	if err := v.errOrNil(); err != nil {
		return nil, err
	}

	if err := a.checkAvailable(ctx, user.ID, username, address); err != nil {
		return nil, err
	}

	var newHash string
	if req.NewPassword != "" {
		if newHash, err = a.hasher.Hash(req.NewPassword); err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
	}

	emailChanged := address != user.Email
	var issued *IssuedVerification
	err = a.database.WithTx(ctx, func(tx *sql.Tx) error {
		users := a.users.WithTx(tx)
		if err := users.UpdateProfile(ctx, user.ID, username, address); err != nil {
			return err
		}
		if newHash != "" {
			if err := users.UpdatePassword(ctx, user.ID, newHash); err != nil {
				return err
			}
		}
		if emailChanged {
			updated := *user
			updated.Username = username
			updated.Email = address
			var err error
			issued, err = a.verifications.IssueTx(ctx, tx, &updated)
			return err
		}
		return nil
	})
	if err != nil {
		if dup := duplicateFieldError(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	user.Username = username
	user.Email = address
	if newHash != "" {
		user.PasswordHash = newHash
	}

	result := &ProfileResult{User: user, VerificationRequired: emailChanged}
	if issued != nil {
		result.EmailSent = email.Deliver(ctx, a.sender, issued.Message)
	}
	return result, nil
}

// checkAvailable reports taken usernames or emails as field errors. selfID
// is excluded so an unchanged value is not a conflict.
func (a *Accounts) checkAvailable(ctx context.Context, selfID, username, address string) error {
	var v ValidationError

	if other, err := a.users.FindByUsername(ctx, username); err == nil {
		if other.ID != selfID {
			v.add("username", "is already taken")
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	if other, err := a.users.FindByEmail(ctx, address); err == nil {
		if other.ID != selfID {
			v.add("email", "is already registered")
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	return v.errOrNil()
}

// duplicateFieldError maps a unique-constraint race at insert time to the
// same field error checkAvailable would have produced.
func duplicateFieldError(err error) error {
	switch {
	case errors.Is(err, db.ErrDuplicateUsername):
		return &ValidationError{Fields: map[string]string{"username": "is already taken"}}
	case errors.Is(err, db.ErrDuplicateEmail):
		return &ValidationError{Fields: map[string]string{"email": "is already registered"}}
	}
	return nil
}
