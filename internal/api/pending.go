package api

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const pendingSessionName = "gatehouse_pending"

// pendingVerification remembers, in a signed cookie, which account just
// signed up or was turned away as unverified, so "resend" works without the
// user typing their email again.
type pendingVerification struct {
	store sessions.Store
}

func newPendingVerification(secret string, maxAge time.Duration, secure bool) *pendingVerification {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/auth",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &pendingVerification{store: store}
}

func (p *pendingVerification) Set(w http.ResponseWriter, r *http.Request, userID, email string) error {
	session, _ := p.store.Get(r, pendingSessionName)
	session.Values["user_id"] = userID
	session.Values["email"] = email
	return session.Save(r, w)
}

// Get returns the remembered account. A missing or tampered cookie reports ok=false.
func (p *pendingVerification) Get(r *http.Request) (userID, email string, ok bool) {
	session, err := p.store.Get(r, pendingSessionName)
	if err != nil || session.IsNew {
		return "", "", false
	}
	userID, _ = session.Values["user_id"].(string)
	email, _ = session.Values["email"].(string)
	if userID == "" || email == "" {
		return "", "", false
	}
	return userID, email, true
}

func (p *pendingVerification) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := p.store.Get(r, pendingSessionName)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
