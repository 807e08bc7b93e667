package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"gatehouse/internal/auth"
	"gatehouse/internal/db"
	"gatehouse/internal/models"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	clientIPKey contextKey = "clientIP"
)

const sessionCookieName = "gatehouse_session"

// AuthMiddleware turns the session cookie into an Identity. The account is
// reloaded on every request, so a deactivated user loses access at once.
type AuthMiddleware struct {
	sessions      *auth.SessionService
	users         *db.UserRepository
	secureCookies bool
}

// NewAuthMiddleware builds the session loader. users may be nil when the
// service runs without a database; every request is then anonymous.
func NewAuthMiddleware(sessions *auth.SessionService, users *db.UserRepository, secureCookies bool) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, users: users, secureCookies: secureCookies}
}

func (m *AuthMiddleware) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" || m.users == nil {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.sessions.Parse(cookie.Value)
		if err != nil {
			m.clearSession(w)
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.FindByID(r.Context(), claims.UserID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			slog.Error("error loading session user", "component", "api", "user_id", claims.UserID, "error", err)
			internalError(w)
			return
		}
		if user == nil || !user.Active {
			m.clearSession(w)
			next.ServeHTTP(w, r)
			return
		}

		id := &models.Identity{UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects requests the policy does not allow.
func (m *AuthMiddleware) Require(policy auth.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := auth.Authorize(GetIdentity(r), policy)
			if !decision.Allowed {
				switch decision.Reason {
				case auth.DenyNotAdmin:
					forbidden(w, "Administrator access required")
				default:
					unauthorized(w, "Please log in to continue")
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) setSession(w http.ResponseWriter, s *auth.Session, persistent bool) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if persistent {
		cookie.Expires = s.ExpiresAt
		cookie.MaxAge = int(time.Until(s.ExpiresAt).Seconds())
	}
	http.SetCookie(w, cookie)
}

func (m *AuthMiddleware) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetIdentity returns the caller, or nil for anonymous requests.
func GetIdentity(r *http.Request) *models.Identity {
	if id, ok := r.Context().Value(identityKey).(*models.Identity); ok {
		return id
	}
	return nil
}

// requireDatabase answers SERVICE_DISABLED when the store is switched off.
func requireDatabase(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				serviceDisabled(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", ClientIP(r),
		)
	})
}
