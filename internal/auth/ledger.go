package auth

import (
	"context"
	"fmt"
	"time"

	"gatehouse/internal/db"
	"gatehouse/internal/models"
)

// Ledger derives per-IP lockout from the raw attempt log. Nothing is cached
// and there is no stored "locked" flag; every check re-reads the window.
type Ledger struct {
	attempts    *db.LoginAttemptRepository
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewLedger(attempts *db.LoginAttemptRepository, maxAttempts int, window time.Duration, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		attempts:    attempts,
		maxAttempts: maxAttempts,
		window:      window,
		now:         now,
	}
}

type Attempt struct {
	IP         string
	Identifier string
	Success    bool
	UserAgent  string
}

// Record appends an attempt. Persistence errors are returned to the caller.
func (l *Ledger) Record(ctx context.Context, a Attempt) (*models.LoginAttempt, error) {
	rec, err := l.attempts.Create(ctx, db.CreateLoginAttemptParams{
		IPAddress:   a.IP,
		Identifier:  optional(a.Identifier),
		Success:     a.Success,
		UserAgent:   optional(a.UserAgent),
		AttemptedAt: l.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("recording attempt: %w", err)
	}
	return rec, nil
}

func (l *Ledger) windowStart() time.Time {
	return l.now().Add(-l.window)
}

// FailedCount counts failures from ip at or after now - window.
func (l *Ledger) FailedCount(ctx context.Context, ip string) (int, error) {
	return l.attempts.CountFailedSince(ctx, ip, l.windowStart())
}

func (l *Ledger) IsLocked(ctx context.Context, ip string) (bool, error) {
	count, err := l.FailedCount(ctx, ip)
	if err != nil {
		return false, err
	}
	return count >= l.maxAttempts, nil
}

// RemainingLockout is measured from the most recent failure in the window.
// ok is false when no positive duration is left.
func (l *Ledger) RemainingLockout(ctx context.Context, ip string) (time.Duration, bool, error) {
	latest, err := l.attempts.LatestFailedSince(ctx, ip, l.windowStart())
	if err != nil {
		return 0, false, err
	}
	if latest == nil {
		return 0, false, nil
	}
	remaining := latest.Add(l.window).Sub(l.now())
	if remaining <= 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

// RemainingAttempts is how many more failures ip may make before lockout.
func (l *Ledger) RemainingAttempts(ctx context.Context, ip string) (int, error) {
	count, err := l.FailedCount(ctx, ip)
	if err != nil {
		return 0, err
	}
	return max(l.maxAttempts-count, 0), nil
}

// Check returns a *LockedOutError when ip is locked and nil otherwise.
func (l *Ledger) Check(ctx context.Context, ip string) error {
	locked, err := l.IsLocked(ctx, ip)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}
	remaining, _, err := l.RemainingLockout(ctx, ip)
	if err != nil {
		return err
	}
	return &LockedOutError{Remaining: remaining}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
