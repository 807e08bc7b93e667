package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gatehouse/internal/models"
)

const resetTokenColumns = `id, user_id, token, created_at, expires_at, is_active, used_at`

type PasswordResetTokenRepository struct {
	db DBTX
}

func NewPasswordResetTokenRepository(db DBTX) *PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{db: db}
}

func (r *PasswordResetTokenRepository) WithTx(tx *sql.Tx) *PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{db: tx}
}

type CreateResetTokenParams struct {
	UserID    string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Replace deactivates every active token for the user and inserts a new active
// one. Run it inside a transaction to keep at most one active token per user.
func (r *PasswordResetTokenRepository) Replace(ctx context.Context, p CreateResetTokenParams) (*models.PasswordResetToken, error) {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET is_active = 0 WHERE user_id = ? AND is_active = 1`,
		p.UserID,
	); err != nil {
		return nil, fmt.Errorf("deactivating reset tokens: %w", err)
	}

	id, err := newID(prefixResetToken)
	if err != nil {
		return nil, fmt.Errorf("generating reset token ID: %w", err)
	}
	createdAt := p.CreatedAt.UTC()
	expiresAt := p.ExpiresAt.UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token, created_at, expires_at, is_active) VALUES (?, ?, ?, ?, ?, 1)`,
		id, p.UserID, p.Token, createdAt, expiresAt,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating reset token: %w", err)
	}

	return &models.PasswordResetToken{
		ID:        id,
		UserID:    p.UserID,
		Token:     p.Token,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		Active:    true,
	}, nil
}

func (r *PasswordResetTokenRepository) FindByToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	t, err := scanResetToken(r.db.QueryRowContext(ctx,
		`SELECT `+resetTokenColumns+` FROM password_reset_tokens WHERE token = ?`, token,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying reset token: %w", err)
	}
	return t, nil
}

// ConsumeValid marks the token used if it is still active, unused and
// unexpired at now, returning the owning user ID. ErrNotFound means the
// conditional update matched nothing.
func (r *PasswordResetTokenRepository) ConsumeValid(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`UPDATE password_reset_tokens
		    SET used_at = ?, is_active = 0
		  WHERE token = ?
		    AND is_active = 1
		    AND used_at IS NULL
		    AND expires_at > ?
		RETURNING user_id`,
		now.UTC(), token, now.UTC(),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consuming reset token: %w", err)
	}
	return userID, nil
}

func (r *PasswordResetTokenRepository) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM password_reset_tokens WHERE user_id = ? AND is_active = 1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active reset tokens: %w", err)
	}
	return count, nil
}

// DeleteExpiredUnused removes never-used tokens whose expiry is before cutoff.
// Used tokens stay for auditing.
func (r *PasswordResetTokenRepository) DeleteExpiredUnused(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at < ? AND used_at IS NULL`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired reset tokens: %w", err)
	}

	return result.RowsAffected()
}

func scanResetToken(row rowScanner) (*models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	var usedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.Active, &usedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.UsedAt = nullTimeToPtr(usedAt)
	return &t, nil
}
