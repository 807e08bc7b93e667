package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatehouse/internal/models"
)

var ErrInvalidSession = errors.New("invalid session")

// SessionService signs and parses the HS256 session cookie. The token only
// names the user; the account is reloaded on every request so deactivation
// and admin changes take effect immediately.
type SessionService struct {
	secret        []byte
	ttl           time.Duration
	rememberMeTTL time.Duration
	now           func() time.Time
}

type SessionClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type Session struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

func NewSessionService(secret string, ttl, rememberMeTTL time.Duration, now func() time.Time) *SessionService {
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		secret:        []byte(secret),
		ttl:           ttl,
		rememberMeTTL: rememberMeTTL,
		now:           now,
	}
}

func (s *SessionService) Issue(user *models.User, rememberMe bool) (*Session, error) {
	ttl := s.ttl
	if rememberMe {
		ttl = s.rememberMeTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	id := uuid.NewString()

	claims := SessionClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}

	return &Session{Token: signed, ID: id, ExpiresAt: expiresAt}, nil
}

func (s *SessionService) Parse(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidSession
	}

	return claims, nil
}
