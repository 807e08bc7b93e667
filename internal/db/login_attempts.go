package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatehouse/internal/models"
)

const loginAttemptColumns = `id, ip_address, identifier, success, attempted_at, user_agent`

// LoginAttemptRepository is append-only: rows are inserted and bulk purged,
// never updated.
type LoginAttemptRepository struct {
	db DBTX
}

func NewLoginAttemptRepository(db DBTX) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

type CreateLoginAttemptParams struct {
	IPAddress   string
	Identifier  *string
	Success     bool
	UserAgent   *string
	AttemptedAt time.Time
}

func (r *LoginAttemptRepository) Create(ctx context.Context, p CreateLoginAttemptParams) (*models.LoginAttempt, error) {
	id, err := newID(prefixLoginAttempt)
	if err != nil {
		return nil, fmt.Errorf("generating login attempt ID: %w", err)
	}
	attemptedAt := p.AttemptedAt.UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO login_attempts (id, ip_address, identifier, success, attempted_at, user_agent) VALUES (?, ?, ?, ?, ?, ?)`,
		id, p.IPAddress, ptrToNullString(p.Identifier), p.Success, attemptedAt, ptrToNullString(p.UserAgent),
	)
	if err != nil {
		return nil, fmt.Errorf("recording login attempt: %w", err)
	}

	return &models.LoginAttempt{
		ID:          id,
		IPAddress:   p.IPAddress,
		Identifier:  p.Identifier,
		Success:     p.Success,
		AttemptedAt: attemptedAt,
		UserAgent:   p.UserAgent,
	}, nil
}

func (r *LoginAttemptRepository) CountFailedSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts WHERE ip_address = ? AND success = 0 AND attempted_at >= ?`,
		ip, since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting failed attempts: %w", err)
	}
	return count, nil
}

// LatestFailedSince returns the time of the most recent failure from ip at or
// after since, or nil when there is none.
func (r *LoginAttemptRepository) LatestFailedSince(ctx context.Context, ip string, since time.Time) (*time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT attempted_at FROM login_attempts
		  WHERE ip_address = ? AND success = 0 AND attempted_at >= ?
		  ORDER BY attempted_at DESC LIMIT 1`,
		ip, since.UTC(),
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest failed attempt: %w", err)
	}
	at = at.UTC()
	return &at, nil
}

func (r *LoginAttemptRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM login_attempts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting login attempts: %w", err)
	}
	return count, nil
}

type AttemptCounts struct {
	Total  int
	Failed int
}

// CountBetween counts attempts in [from, to).
func (r *LoginAttemptRepository) CountBetween(ctx context.Context, from, to time.Time) (AttemptCounts, error) {
	var c AttemptCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		   FROM login_attempts
		  WHERE attempted_at >= ? AND attempted_at < ?`,
		from.UTC(), to.UTC(),
	).Scan(&c.Total, &c.Failed)
	if err != nil {
		return AttemptCounts{}, fmt.Errorf("counting attempts in range: %w", err)
	}
	return c, nil
}

func (r *LoginAttemptRepository) CountSince(ctx context.Context, since time.Time) (AttemptCounts, error) {
	var c AttemptCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		   FROM login_attempts
		  WHERE attempted_at >= ?`,
		since.UTC(),
	).Scan(&c.Total, &c.Failed)
	if err != nil {
		return AttemptCounts{}, fmt.Errorf("counting recent attempts: %w", err)
	}
	return c, nil
}

// List returns attempts newest first.
func (r *LoginAttemptRepository) List(ctx context.Context, page Page) ([]*models.LoginAttempt, error) {
	limit, offset := page.args()
	return r.findMany(ctx,
		`SELECT `+loginAttemptColumns+` FROM login_attempts ORDER BY attempted_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
}

// ListByIdentifiers returns the newest attempts whose identifier is any of the given values.
func (r *LoginAttemptRepository) ListByIdentifiers(ctx context.Context, identifiers []string, limit int) ([]*models.LoginAttempt, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(identifiers)), ", ")
	args := make([]any, 0, len(identifiers)+1)
	for _, id := range identifiers {
		args = append(args, id)
	}
	args = append(args, limit)

	return r.findMany(ctx,
		`SELECT `+loginAttemptColumns+` FROM login_attempts
		  WHERE identifier IN (`+placeholders+`)
		  ORDER BY attempted_at DESC LIMIT ?`,
		args...,
	)
}

func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE attempted_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting old login attempts: %w", err)
	}

	return result.RowsAffected()
}

func (r *LoginAttemptRepository) findMany(ctx context.Context, query string, args ...any) ([]*models.LoginAttempt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying login attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.LoginAttempt
	for rows.Next() {
		var a models.LoginAttempt
		var identifier, userAgent sql.NullString
		if err := rows.Scan(&a.ID, &a.IPAddress, &identifier, &a.Success, &a.AttemptedAt, &userAgent); err != nil {
			return nil, fmt.Errorf("scanning login attempt: %w", err)
		}
		a.AttemptedAt = a.AttemptedAt.UTC()
		a.Identifier = nullStringToPtr(identifier)
		a.UserAgent = nullStringToPtr(userAgent)
		attempts = append(attempts, &a)
	}

	return attempts, rows.Err()
}
