package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gatehouse/internal/models"
)

const contactColumns = `id, name, email, subject, message, created_at, is_read`

type ContactRepository struct {
	db DBTX
}

func NewContactRepository(db DBTX) *ContactRepository {
	return &ContactRepository{db: db}
}

type CreateContactParams struct {
	Name      string
	Email     string
	Subject   string
	Message   string
	CreatedAt time.Time
}

func (r *ContactRepository) Create(ctx context.Context, p CreateContactParams) (*models.ContactSubmission, error) {
	id, err := newID(prefixContact)
	if err != nil {
		return nil, fmt.Errorf("generating contact ID: %w", err)
	}
	createdAt := p.CreatedAt.UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO contact_submissions (id, name, email, subject, message, created_at, is_read) VALUES (?, ?, ?, ?, ?, ?, 0)`,
		id, p.Name, p.Email, p.Subject, p.Message, createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating contact submission: %w", err)
	}

	return &models.ContactSubmission{
		ID:        id,
		Name:      p.Name,
		Email:     p.Email,
		Subject:   p.Subject,
		Message:   p.Message,
		CreatedAt: createdAt,
	}, nil
}

func (r *ContactRepository) FindByID(ctx context.Context, id string) (*models.ContactSubmission, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contact_submissions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying contact submission: %w", err)
	}
	return c, nil
}

// List returns submissions newest first.
func (r *ContactRepository) List(ctx context.Context, page Page) ([]*models.ContactSubmission, error) {
	limit, offset := page.args()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contact_submissions ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying contact submissions: %w", err)
	}
	defer rows.Close()

	var result []*models.ContactSubmission
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contact submission: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *ContactRepository) MarkRead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE contact_submissions SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking contact submission read: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *ContactRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_submissions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting contact submissions: %w", err)
	}
	return count, nil
}

func (r *ContactRepository) CountUnread(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_submissions WHERE is_read = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting unread contact submissions: %w", err)
	}
	return count, nil
}

func (r *ContactRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_submissions WHERE created_at >= ?`, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting recent contact submissions: %w", err)
	}
	return count, nil
}

func (r *ContactRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM contact_submissions WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting old contact submissions: %w", err)
	}

	return result.RowsAffected()
}

func scanContact(row rowScanner) (*models.ContactSubmission, error) {
	var c models.ContactSubmission
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Subject, &c.Message, &c.CreatedAt, &c.IsRead); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
