package admin

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"gatehouse/internal/db"
	"gatehouse/internal/models"
)

type LogType string

const (
	LogLoginAttempts      LogType = "login_attempts"
	LogUserRegistrations  LogType = "user_registrations"
	LogEmailVerifications LogType = "email_verifications"
	LogContactSubmissions LogType = "contact_submissions"
)

var ErrUnknownLogType = errors.New("unknown log type")

func ParseLogType(s string) (LogType, error) {
	switch t := LogType(s); t {
	case LogLoginAttempts, LogUserRegistrations, LogEmailVerifications, LogContactSubmissions:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLogType, s)
}

// LogPage is one page of a log listing. Entries holds the rows for the
// requested type.
type LogPage struct {
	Type    LogType `json:"type"`
	Entries any     `json:"entries"`
	PageInfo
}

func (s *Service) ListLogs(ctx context.Context, logType LogType, p Pagination) (*LogPage, error) {
	p = p.normalize()
	page := p.dbPage()

	var entries any
	var total int
	var err error

	switch logType {
	case LogLoginAttempts:
		var rows []*models.LoginAttempt
		if rows, err = s.repos.LoginAttempts.List(ctx, page); err == nil {
			total, err = s.repos.LoginAttempts.CountAll(ctx)
		}
		entries = emptyIfNil(rows)
	case LogUserRegistrations:
		var rows []*models.User
		rows, total, err = s.repos.Users.List(ctx, db.UserFilter{Status: db.UserStatusAll, Page: page})
		entries = emptyIfNil(rows)
	case LogEmailVerifications:
		var rows []*db.VerificationLogRow
		if rows, err = s.repos.Verifications.List(ctx, page); err == nil {
			total, err = s.repos.Verifications.CountAll(ctx)
		}
		entries = emptyIfNil(rows)
	case LogContactSubmissions:
		var rows []*models.ContactSubmission
		if rows, err = s.repos.Contacts.List(ctx, page); err == nil {
			total, err = s.repos.Contacts.Count(ctx)
		}
		entries = emptyIfNil(rows)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLogType, logType)
	}
	if err != nil {
		return nil, err
	}

	return &LogPage{Type: logType, Entries: entries, PageInfo: pageInfo(p, total)}, nil
}

// ExportFilename is the attachment name for a CSV export taken at now.
func ExportFilename(logType LogType, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", logType, now.UTC().Format("20060102_150405"))
}

// ExportCSV writes every row of the log type to w as CSV with a header row.
func (s *Service) ExportCSV(ctx context.Context, logType LogType, w io.Writer) error {
	cw := csv.NewWriter(w)
	all := db.Page{}

	switch logType {
	case LogLoginAttempts:
		rows, err := s.repos.LoginAttempts.List(ctx, all)
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"id", "ip_address", "identifier", "success", "attempted_at", "user_agent"})
		for _, a := range rows {
			_ = cw.Write([]string{a.ID, a.IPAddress, deref(a.Identifier), strconv.FormatBool(a.Success), formatTime(a.AttemptedAt), deref(a.UserAgent)})
		}
	case LogUserRegistrations:
		rows, _, err := s.repos.Users.List(ctx, db.UserFilter{Status: db.UserStatusAll, Page: all})
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"id", "username", "email", "active", "is_admin", "created_at", "last_login_at"})
		for _, u := range rows {
			_ = cw.Write([]string{u.ID, u.Username, u.Email, strconv.FormatBool(u.Active), strconv.FormatBool(u.IsAdmin), formatTime(u.CreatedAt), formatTimePtr(u.LastLoginAt)})
		}
	case LogEmailVerifications:
		rows, err := s.repos.Verifications.List(ctx, all)
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"id", "user_id", "username", "email", "created_at", "expires_at", "is_verified", "verified_at"})
		for _, v := range rows {
			_ = cw.Write([]string{v.ID, v.UserID, deref(v.Username), v.Email, formatTime(v.CreatedAt), formatTime(v.ExpiresAt), strconv.FormatBool(v.IsVerified), formatTimePtr(v.VerifiedAt)})
		}
	case LogContactSubmissions:
		rows, err := s.repos.Contacts.List(ctx, all)
		if err != nil {
			return err
		}
		_ = cw.Write([]string{"id", "name", "email", "subject", "message", "created_at", "is_read"})
		for _, c := range rows {
			_ = cw.Write([]string{c.ID, c.Name, c.Email, c.Subject, c.Message, formatTime(c.CreatedAt), strconv.FormatBool(c.IsRead)})
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLogType, logType)
	}

	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
