// Package admin provides read-only reporting over users, login attempts,
// verifications and contact submissions, plus the few mutating actions an
// administrator can take.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"gatehouse/internal/constants"
	"gatehouse/internal/db"
	"gatehouse/internal/models"
)

var ErrSelfModification = errors.New("administrators cannot change their own account flags")

type Service struct {
	repos   *db.Repositories
	cleanup *db.CleanupService
	now     func() time.Time
}

func NewService(repos *db.Repositories, cleanup *db.CleanupService, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repos: repos, cleanup: cleanup, now: now}
}

type Stats struct {
	TotalUsers           int `json:"totalUsers"`
	ActiveUsers          int `json:"activeUsers"`
	InactiveUsers        int `json:"inactiveUsers"`
	AdminUsers           int `json:"adminUsers"`
	RegularUsers         int `json:"regularUsers"`
	RecentRegistrations  int `json:"recentRegistrations"`
	AttemptsLast24h      int `json:"attemptsLast24h"`
	FailedLast24h        int `json:"failedLast24h"`
	VerifiedEmails       int `json:"verifiedEmails"`
	PendingVerifications int `json:"pendingVerifications"`
	TotalContacts        int `json:"totalContacts"`
	RecentContacts       int `json:"recentContacts"`
	UnreadContacts       int `json:"unreadContacts"`
}

// Stats computes dashboard counters. Empty tables yield zeros.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().UTC()
	monthAgo := now.Add(-30 * 24 * time.Hour)

	users, err := s.repos.Users.Counts(ctx)
	if err != nil {
		return nil, err
	}
	recentUsers, err := s.repos.Users.CountCreatedSince(ctx, monthAgo)
	if err != nil {
		return nil, err
	}
	attempts, err := s.repos.LoginAttempts.CountSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	verifications, err := s.repos.Verifications.Counts(ctx)
	if err != nil {
		return nil, err
	}
	totalContacts, err := s.repos.Contacts.Count(ctx)
	if err != nil {
		return nil, err
	}
	recentContacts, err := s.repos.Contacts.CountSince(ctx, monthAgo)
	if err != nil {
		return nil, err
	}
	unread, err := s.repos.Contacts.CountUnread(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalUsers:           users.Total,
		ActiveUsers:          users.Active,
		InactiveUsers:        users.Total - users.Active,
		AdminUsers:           users.Admins,
		RegularUsers:         users.Total - users.Admins,
		RecentRegistrations:  recentUsers,
		AttemptsLast24h:      attempts.Total,
		FailedLast24h:        attempts.Failed,
		VerifiedEmails:       verifications.Verified,
		PendingVerifications: verifications.Pending,
		TotalContacts:        totalContacts,
		RecentContacts:       recentContacts,
		UnreadContacts:       unread,
	}, nil
}

type Dashboard struct {
	Stats          *Stats                 `json:"stats"`
	RecentUsers    []*models.User         `json:"recentUsers"`
	RecentAttempts []*models.LoginAttempt `json:"recentAttempts"`
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.repos.Users.Recent(ctx, constants.RecentUsersLimit)
	if err != nil {
		return nil, err
	}
	attempts, err := s.repos.LoginAttempts.List(ctx, db.Page{Limit: constants.RecentAttemptsLimit})
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Stats:          stats,
		RecentUsers:    emptyIfNil(users),
		RecentAttempts: emptyIfNil(attempts),
	}, nil
}

type HistogramDay struct {
	Date   string `json:"date"`
	Total  int    `json:"total"`
	Failed int    `json:"failed"`
}

// AttemptHistogram buckets login attempts by UTC calendar day for the
// HistogramDays days ending today, oldest first.
func (s *Service) AttemptHistogram(ctx context.Context) ([]HistogramDay, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	days := make([]HistogramDay, 0, constants.HistogramDays)
	for i := constants.HistogramDays - 1; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		counts, err := s.repos.LoginAttempts.CountBetween(ctx, start, start.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("bucketing %s: %w", start.Format(time.DateOnly), err)
		}
		days = append(days, HistogramDay{
			Date:   start.Format(time.DateOnly),
			Total:  counts.Total,
			Failed: counts.Failed,
		})
	}
	return days, nil
}

// ToggleActive flips the target's active flag. An admin may not deactivate
// themselves.
func (s *Service) ToggleActive(ctx context.Context, actor models.Identity, userID string) (bool, error) {
	if actor.UserID == userID {
		return false, ErrSelfModification
	}
	active, err := s.repos.Users.ToggleActive(ctx, userID)
	if err != nil {
		return false, err
	}
	slog.Info("user active flag toggled", "component", "admin", "actor", actor.UserID, "user_id", userID, "active", active)
	return active, nil
}

// ToggleAdmin flips the target's admin flag. An admin may not demote themselves.
func (s *Service) ToggleAdmin(ctx context.Context, actor models.Identity, userID string) (bool, error) {
	if actor.UserID == userID {
		return false, ErrSelfModification
	}
	isAdmin, err := s.repos.Users.ToggleAdmin(ctx, userID)
	if err != nil {
		return false, err
	}
	slog.Info("user admin flag toggled", "component", "admin", "actor", actor.UserID, "user_id", userID, "is_admin", isAdmin)
	return isAdmin, nil
}

// Pagination is a 1-based page request. PerPage values outside
// AllowedPageSizes fall back to the smallest size.
type Pagination struct {
	Page    int
	PerPage int
}

func (p Pagination) normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if !slices.Contains(constants.AllowedPageSizes, p.PerPage) {
		p.PerPage = constants.AllowedPageSizes[0]
	}
	return p
}

func (p Pagination) dbPage() db.Page {
	return db.Page{Limit: p.PerPage, Offset: (p.Page - 1) * p.PerPage}
}

type PageInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func pageInfo(p Pagination, total int) PageInfo {
	pages := (total + p.PerPage - 1) / p.PerPage
	return PageInfo{Page: p.Page, PerPage: p.PerPage, Total: total, TotalPages: max(pages, 1)}
}

type UserList struct {
	Users []*models.User `json:"users"`
	PageInfo
}

func (s *Service) ListUsers(ctx context.Context, search string, status db.UserStatus, p Pagination) (*UserList, error) {
	p = p.normalize()
	switch status {
	case db.UserStatusActive, db.UserStatusInactive, db.UserStatusAdmin:
	default:
		status = db.UserStatusAll
	}

	users, total, err := s.repos.Users.List(ctx, db.UserFilter{Search: search, Status: status, Page: p.dbPage()})
	if err != nil {
		return nil, err
	}
	return &UserList{Users: emptyIfNil(users), PageInfo: pageInfo(p, total)}, nil
}

type UserDetail struct {
	User          *models.User                `json:"user"`
	Verified      bool                        `json:"verified"`
	Attempts      []*models.LoginAttempt      `json:"attempts"`
	Verifications []*models.EmailVerification `json:"verifications"`
}

// UserDetail loads a user with the attempts made under their username or
// email and their verification history.
func (s *Service) UserDetail(ctx context.Context, userID string) (*UserDetail, error) {
	user, err := s.repos.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.repos.LoginAttempts.ListByIdentifiers(ctx, []string{user.Username, user.Email}, constants.UserDetailAttempts)
	if err != nil {
		return nil, err
	}
	verifications, err := s.repos.Verifications.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	verified, err := s.repos.Verifications.IsVerified(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &UserDetail{
		User:          user,
		Verified:      verified,
		Attempts:      emptyIfNil(attempts),
		Verifications: emptyIfNil(verifications),
	}, nil
}

// Cleanup purges aged records using the configured retention.
func (s *Service) Cleanup(ctx context.Context, actor models.Identity) (db.CleanupReport, error) {
	report, err := s.cleanup.Run(ctx, s.now())
	if err != nil {
		return report, err
	}
	slog.Info("admin cleanup", "component", "admin", "actor", actor.UserID, "removed", report.Total())
	return report, nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
