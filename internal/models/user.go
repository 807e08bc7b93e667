package models

import "time"

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Active       bool       `json:"active"`
	IsAdmin      bool       `json:"isAdmin"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// Identity is the authenticated caller of a request. It is resolved once from
// the session cookie and passed explicitly to every operation that needs it.
type Identity struct {
	UserID   string
	Username string
	IsAdmin  bool
}

type LoginAttempt struct {
	ID          string    `json:"id"`
	IPAddress   string    `json:"ipAddress"`
	Identifier  *string   `json:"identifier,omitempty"`
	Success     bool      `json:"success"`
	AttemptedAt time.Time `json:"attemptedAt"`
	UserAgent   *string   `json:"userAgent,omitempty"`
}

type EmailVerification struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Email      string     `json:"email"`
	Token      string     `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	IsVerified bool       `json:"isVerified"`
}

// IsExpired reports whether now is at or past the expiry.
func (v *EmailVerification) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

type PasswordResetToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Token     string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Active    bool       `json:"active"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

// IsValid reports whether the token may still be used to reset a password.
func (t *PasswordResetToken) IsValid(now time.Time) bool {
	return t.Active && t.UsedAt == nil && now.Before(t.ExpiresAt)
}

type ContactSubmission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	IsRead    bool      `json:"isRead"`
}
