package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const day = 24 * time.Hour

// Retention holds how many days each kind of record is kept before cleanup
// may remove it. A zero value disables cleanup for that kind.
type Retention struct {
	LoginAttemptDays int
	VerificationDays int
	ResetTokenDays   int
	ContactDays      int
}

type CleanupReport struct {
	LoginAttempts  int64 `json:"loginAttempts"`
	Verifications  int64 `json:"verifications"`
	ResetTokens    int64 `json:"resetTokens"`
	ContactEntries int64 `json:"contactSubmissions"`
}

func (r CleanupReport) Total() int64 {
	return r.LoginAttempts + r.Verifications + r.ResetTokens + r.ContactEntries
}

// CleanupService purges aged records on demand. There is no background
// ticker: callers trigger Run from the admin surface or the CLI.
type CleanupService struct {
	loginAttempts *LoginAttemptRepository
	verifications *EmailVerificationRepository
	resetTokens   *PasswordResetTokenRepository
	contacts      *ContactRepository
	retention     Retention
}

func NewCleanupService(repos *Repositories, retention Retention) *CleanupService {
	return &CleanupService{
		loginAttempts: repos.LoginAttempts,
		verifications: repos.Verifications,
		resetTokens:   repos.ResetTokens,
		contacts:      repos.Contacts,
		retention:     retention,
	}
}

// Run deletes every record older than its retention as of now. It stops at
// the first failing step and returns what was removed up to that point.
func (s *CleanupService) Run(ctx context.Context, now time.Time) (CleanupReport, error) {
	var report CleanupReport
	var err error

	if days := s.retention.LoginAttemptDays; days > 0 {
		report.LoginAttempts, err = s.loginAttempts.DeleteOlderThan(ctx, cutoff(now, days))
		if err != nil {
			return report, fmt.Errorf("cleaning login attempts: %w", err)
		}
	}

	if days := s.retention.VerificationDays; days > 0 {
		report.Verifications, err = s.verifications.DeleteExpiredUnverified(ctx, cutoff(now, days))
		if err != nil {
			return report, fmt.Errorf("cleaning email verifications: %w", err)
		}
	}

	if days := s.retention.ResetTokenDays; days > 0 {
		report.ResetTokens, err = s.resetTokens.DeleteExpiredUnused(ctx, cutoff(now, days))
		if err != nil {
			return report, fmt.Errorf("cleaning reset tokens: %w", err)
		}
	}

	if days := s.retention.ContactDays; days > 0 {
		report.ContactEntries, err = s.contacts.DeleteOlderThan(ctx, cutoff(now, days))
		if err != nil {
			return report, fmt.Errorf("cleaning contact submissions: %w", err)
		}
	}

	slog.Info("cleanup finished", "component", "cleanup",
		"login_attempts", report.LoginAttempts,
		"verifications", report.Verifications,
		"reset_tokens", report.ResetTokens,
		"contact_submissions", report.ContactEntries,
	)
	return report, nil
}

func cutoff(now time.Time, days int) time.Time {
	return now.UTC().Add(-time.Duration(days) * day)
}
