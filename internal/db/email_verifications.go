package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gatehouse/internal/models"
)

const emailVerificationColumns = `id, user_id, email, token, created_at, expires_at, verified_at, is_verified`

type EmailVerificationRepository struct {
	db DBTX
}

func NewEmailVerificationRepository(db DBTX) *EmailVerificationRepository {
	return &EmailVerificationRepository{db: db}
}

func (r *EmailVerificationRepository) WithTx(tx *sql.Tx) *EmailVerificationRepository {
	return &EmailVerificationRepository{db: tx}
}

type CreateVerificationParams struct {
	UserID    string
	Email     string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Supersede deletes every unverified row for (user, email) and inserts a new
// one. Callers run it inside a transaction so the pair never holds two
// outstanding tokens.
func (r *EmailVerificationRepository) Supersede(ctx context.Context, p CreateVerificationParams) (*models.EmailVerification, error) {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM email_verifications WHERE user_id = ? AND email = ? AND is_verified = 0`,
		p.UserID, p.Email,
	); err != nil {
		return nil, fmt.Errorf("superseding verifications: %w", err)
	}

	id, err := newID(prefixVerification)
	if err != nil {
		return nil, fmt.Errorf("generating verification ID: %w", err)
	}
	createdAt := p.CreatedAt.UTC()
	expiresAt := p.ExpiresAt.UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO email_verifications (id, user_id, email, token, created_at, expires_at, is_verified) VALUES (?, ?, ?, ?, ?, ?, 0)`,
		id, p.UserID, p.Email, p.Token, createdAt, expiresAt,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating verification: %w", err)
	}

	return &models.EmailVerification{
		ID:        id,
		UserID:    p.UserID,
		Email:     p.Email,
		Token:     p.Token,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// CreateVerified records an already verified address, used when an operator
// provisions an account out of band.
func (r *EmailVerificationRepository) CreateVerified(ctx context.Context, p CreateVerificationParams) error {
	id, err := newID(prefixVerification)
	if err != nil {
		return fmt.Errorf("generating verification ID: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO email_verifications (id, user_id, email, token, created_at, expires_at, verified_at, is_verified) VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		id, p.UserID, p.Email, p.Token, p.CreatedAt.UTC(), p.ExpiresAt.UTC(), p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating verified record: %w", err)
	}
	return nil
}

func (r *EmailVerificationRepository) FindByToken(ctx context.Context, token string) (*models.EmailVerification, error) {
	v, err := scanVerification(r.db.QueryRowContext(ctx,
		`SELECT `+emailVerificationColumns+` FROM email_verifications WHERE token = ?`, token,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying verification: %w", err)
	}
	return v, nil
}

// MarkVerifiedIfPending atomically verifies a row that is still unverified and
// unexpired at now. It reports false when another caller won or the row expired.
func (r *EmailVerificationRepository) MarkVerifiedIfPending(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE email_verifications
		    SET is_verified = 1, verified_at = ?
		  WHERE id = ?
		    AND is_verified = 0
		    AND expires_at > ?`,
		now.UTC(), id, now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("marking verification used: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *EmailVerificationRepository) IsVerified(ctx context.Context, userID, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_verifications WHERE user_id = ? AND email = ? AND is_verified = 1`,
		userID, email,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking verification status: %w", err)
	}
	return count > 0, nil
}

func (r *EmailVerificationRepository) ListByUser(ctx context.Context, userID string) ([]*models.EmailVerification, error) {
	return r.findMany(ctx,
		`SELECT `+emailVerificationColumns+` FROM email_verifications WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
}

// VerificationLogRow is a verification joined with its owner's username.
type VerificationLogRow struct {
	models.EmailVerification
	Username *string `json:"username,omitempty"`
}

// List returns verifications newest first together with the owning username.
func (r *EmailVerificationRepository) List(ctx context.Context, page Page) ([]*VerificationLogRow, error) {
	limit, offset := page.args()
	rows, err := r.db.QueryContext(ctx,
		`SELECT v.id, v.user_id, v.email, v.token, v.created_at, v.expires_at, v.verified_at, v.is_verified, u.username
		   FROM email_verifications v
		   LEFT JOIN users u ON u.id = v.user_id
		  ORDER BY v.created_at DESC
		  LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying verifications: %w", err)
	}
	defer rows.Close()

	var result []*VerificationLogRow
	for rows.Next() {
		var row VerificationLogRow
		var verifiedAt sql.NullTime
		var username sql.NullString
		if err := rows.Scan(
			&row.ID, &row.UserID, &row.Email, &row.Token,
			&row.CreatedAt, &row.ExpiresAt, &verifiedAt, &row.IsVerified, &username,
		); err != nil {
			return nil, fmt.Errorf("scanning verification: %w", err)
		}
		row.CreatedAt = row.CreatedAt.UTC()
		row.ExpiresAt = row.ExpiresAt.UTC()
		row.VerifiedAt = nullTimeToPtr(verifiedAt)
		row.Username = nullStringToPtr(username)
		result = append(result, &row)
	}
	return result, rows.Err()
}

type VerificationCounts struct {
	Verified int
	Pending  int
}

func (r *EmailVerificationRepository) Counts(ctx context.Context) (VerificationCounts, error) {
	var c VerificationCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN is_verified = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN is_verified = 0 THEN 1 ELSE 0 END), 0)
		   FROM email_verifications`,
	).Scan(&c.Verified, &c.Pending)
	if err != nil {
		return VerificationCounts{}, fmt.Errorf("counting verifications: %w", err)
	}
	return c, nil
}

func (r *EmailVerificationRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_verifications`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting verifications: %w", err)
	}
	return count, nil
}

// DeleteExpiredUnverified removes unverified rows whose expiry is before
// cutoff. Verified rows are kept as an audit trail regardless of age.
func (r *EmailVerificationRepository) DeleteExpiredUnverified(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM email_verifications WHERE expires_at < ? AND is_verified = 0`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired verifications: %w", err)
	}

	return result.RowsAffected()
}

func (r *EmailVerificationRepository) findMany(ctx context.Context, query string, args ...any) ([]*models.EmailVerification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying verifications: %w", err)
	}
	defer rows.Close()

	var result []*models.EmailVerification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning verification: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func scanVerification(row rowScanner) (*models.EmailVerification, error) {
	var v models.EmailVerification
	var verifiedAt sql.NullTime
	if err := row.Scan(&v.ID, &v.UserID, &v.Email, &v.Token, &v.CreatedAt, &v.ExpiresAt, &verifiedAt, &v.IsVerified); err != nil {
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.ExpiresAt = v.ExpiresAt.UTC()
	v.VerifiedAt = nullTimeToPtr(verifiedAt)
	return &v, nil
}
