package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gatehouse/internal/admin"
	"gatehouse/internal/auth"
	"gatehouse/internal/captcha"
	"gatehouse/internal/config"
	"gatehouse/internal/constants"
	"gatehouse/internal/contact"
	"gatehouse/internal/db"
)

// Services are the domain components the HTTP layer drives. Accounts and
// Admin may be nil when the database is disabled; their routes then answer
// SERVICE_DISABLED.
type Services struct {
	Gate     *auth.Gate
	Accounts *auth.Accounts
	Sessions *auth.SessionService
	Admin    *admin.Service
	Contact  *contact.Service
	Captcha  captcha.Verifier
	Now      func() time.Time
}

type Server struct {
	router *chi.Mux
	config *config.Config
}

func NewServer(cfg *config.Config, database *db.DB, svc Services) (*Server, error) {
	resolver, err := NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("configuring trusted proxies: %w", err)
	}

	dbEnabled := database != nil && !cfg.Database.Disabled
	var users *db.UserRepository
	if dbEnabled {
		users = database.Repositories().Users
	} else {
		database = nil
	}

	metrics := NewMetrics()
	authMiddleware := NewAuthMiddleware(svc.Sessions, users, cfg.Server.SecureCookies)
	pending := newPendingVerification(cfg.Auth.SessionSecret, cfg.Auth.VerificationTTL, cfg.Server.SecureCookies)

	authHandler := NewAuthHandler(svc.Gate, svc.Accounts, svc.Sessions, authMiddleware, pending, svc.Captcha, metrics)
	profileHandler := NewProfileHandler(svc.Accounts, metrics)
	adminHandler := NewAdminHandler(svc.Admin, svc.Contact, svc.Now)
	contactHandler := NewContactHandler(svc.Contact)
	healthHandler := NewHealthHandler(database)
	serverInfoHandler := NewServerInfoHandler(cfg)

	throttle := func(limit int) func(http.Handler) http.Handler {
		return RateLimit(resolver, limit, constants.ThrottleWindow)
	}
	storeRequired := requireDatabase(dbEnabled)

	r := chi.NewRouter()
	r.Use(resolver.Middleware)
	r.Use(slogRequestLogger)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/server/info", serverInfoHandler.GetInfo)

	r.Group(func(r chi.Router) {
		r.Use(maxBodySizeMiddleware(constants.MaxRequestBodyBytes))
		r.Use(authMiddleware.LoadIdentity)

		r.Route("/auth", func(r chi.Router) {
			// The gate answers SERVICE_DISABLED itself, before recording anything.
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(storeRequired)
				r.With(throttle(constants.SignupThrottle)).Post("/signup", authHandler.Signup)
				r.With(throttle(constants.ResendThrottle)).Post("/resend-verification", authHandler.ResendVerification)
				r.Get("/verify-email/{token}", authHandler.VerifyEmail)
				r.With(throttle(constants.ForgotThrottle)).Post("/forgot-password", authHandler.ForgotPassword)
				r.Get("/reset-password/{token}", authHandler.CheckResetToken)
				r.Post("/reset-password/{token}", authHandler.ResetPassword)
			})
		})

		r.Route("/profile", func(r chi.Router) {
			r.Use(storeRequired)
			r.Use(authMiddleware.Require(auth.RequireLogin))
			r.Get("/", profileHandler.Get)
			r.Post("/", profileHandler.Update)
		})

		// Contact intake stays open without a store; submissions are only logged.
		r.With(throttle(constants.ContactThrottle)).Post("/contact", contactHandler.Submit)

		r.Route("/admin", func(r chi.Router) {
			r.Use(storeRequired)
			r.Use(authMiddleware.Require(auth.RequireAdmin))
			r.Get("/", adminHandler.Dashboard)
			r.Get("/api/stats", adminHandler.Stats)
			r.Get("/users", adminHandler.ListUsers)
			r.Get("/users/{id}", adminHandler.UserDetail)
			r.Post("/users/{id}/toggle-active", adminHandler.ToggleActive)
			r.Post("/users/{id}/toggle-admin", adminHandler.ToggleAdmin)
			r.Post("/cleanup", adminHandler.Cleanup)
			r.Get("/logs/{type}", adminHandler.Logs)
			r.Get("/logs/{type}/export", adminHandler.ExportLogs)
			r.Get("/contacts", adminHandler.Contacts)
			r.Post("/contacts/{id}/read", adminHandler.MarkContactRead)
		})
	})

	return &Server{
		router: r,
		config: cfg,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
