// Package app wires configuration into the domain services shared by the
// server and the operator CLI.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"gatehouse/internal/admin"
	"gatehouse/internal/api"
	"gatehouse/internal/auth"
	"gatehouse/internal/captcha"
	"gatehouse/internal/config"
	"gatehouse/internal/contact"
	"gatehouse/internal/db"
	"gatehouse/internal/email"
)

type App struct {
	Config   *config.Config
	DB       *db.DB
	Repos    *db.Repositories
	Cleanup  *db.CleanupService
	Services api.Services
}

// Options lets tests and tools override the collaborators built from config.
type Options struct {
	Sender       email.Sender
	Captcha      captcha.Verifier
	Argon2Params *auth.Argon2Params
	Now          func() time.Time
}

// New opens the store (unless disabled) and builds every service. With the
// database disabled only the gate, sessions and log-only contact intake exist.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Sender == nil {
		opts.Sender = email.NewSender(cfg.Email.SMTP)
	}
	if opts.Captcha == nil {
		opts.Captcha = captcha.New(cfg.Captcha)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	params := auth.DefaultArgon2Params
	if opts.Argon2Params != nil {
		params = *opts.Argon2Params
	}

	hasher := auth.NewPasswordHasher(params)
	sessions := auth.NewSessionService(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, cfg.Auth.RememberMeTTL, opts.Now)

	a := &App{Config: cfg}

	if cfg.Database.Disabled {
		slog.Warn("database disabled, store-backed flows will answer SERVICE_DISABLED", "component", "app")
		gate, err := auth.NewGate(auth.GateConfig{Hasher: hasher, Captcha: opts.Captcha, Disabled: true, Now: opts.Now})
		if err != nil {
			return nil, err
		}
		a.Services = api.Services{
			Gate:     gate,
			Sessions: sessions,
			Contact:  contact.NewService(nil, opts.Now),
			Captcha:  opts.Captcha,
			Now:      opts.Now,
		}
		return a, nil
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	repos := database.Repositories()

	issuer := func(ttl time.Duration) auth.IssuerConfig {
		return auth.IssuerConfig{TTL: ttl, BaseURL: cfg.Server.BaseURL, AppName: cfg.Server.Name, Now: opts.Now}
	}
	verifications := auth.NewVerificationIssuer(database, repos, issuer(cfg.Auth.VerificationTTL))
	resets := auth.NewResetIssuer(database, repos, issuer(cfg.Auth.ResetTTL))
	ledger := auth.NewLedger(repos.LoginAttempts, cfg.Auth.MaxLoginAttempts, cfg.LockoutWindow(), opts.Now)

	gate, err := auth.NewGate(auth.GateConfig{
		Users:         repos.Users,
		Ledger:        ledger,
		Verifications: verifications,
		Hasher:        hasher,
		Captcha:       opts.Captcha,
		Now:           opts.Now,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("building login gate: %w", err)
	}

	cleanup := db.NewCleanupService(repos, db.Retention{
		LoginAttemptDays: cfg.Retention.LoginAttemptDays,
		VerificationDays: cfg.Retention.VerificationDays,
		ResetTokenDays:   cfg.Retention.ResetTokenDays,
		ContactDays:      cfg.Retention.ContactDays,
	})

	a.DB = database
	a.Repos = repos
	a.Cleanup = cleanup
	a.Services = api.Services{
		Gate: gate,
		Accounts: auth.NewAccounts(auth.AccountsConfig{
			DB:            database,
			Users:         repos.Users,
			Verifications: verifications,
			Resets:        resets,
			Hasher:        hasher,
			Sender:        opts.Sender,
			Now:           opts.Now,
		}),
		Sessions: sessions,
		Admin:    admin.NewService(repos, cleanup, opts.Now),
		Contact:  contact.NewService(repos.Contacts, opts.Now),
		Captcha:  opts.Captcha,
		Now:      opts.Now,
	}
	return a, nil
}

// Server builds the HTTP handler for the app.
func (a *App) Server() (*api.Server, error) {
	return api.NewServer(a.Config, a.DB, a.Services)
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
