package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gatehouse/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")

	ErrDuplicateUsername = fmt.Errorf("username taken: %w", ErrDuplicate)
	ErrDuplicateEmail    = fmt.Errorf("email taken: %w", ErrDuplicate)
)

const userColumns = `id, username, email, password_hash, active, is_admin, created_at, last_login_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

func (r *UserRepository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	id, err := newID(prefixUser)
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	createdAt := p.CreatedAt.UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, active, is_admin, created_at) VALUES (?, ?, ?, ?, 1, ?, ?)`,
		id, p.Username, p.Email, p.PasswordHash, p.IsAdmin, createdAt,
	)
	if err != nil {
		if dup := duplicateUserError(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return &models.User{
		ID:           id,
		Username:     p.Username,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		Active:       true,
		IsAdmin:      p.IsAdmin,
		CreatedAt:    createdAt,
	}, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// FindByIdentifier matches either the username or the email column.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? ORDER BY username = ? DESC LIMIT 1`,
		identifier, identifier, identifier,
	)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id, username, email string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ? WHERE id = ?`,
		username, email, id,
	)
	if err != nil {
		if dup := duplicateUserError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("updating profile: %w", err)
	}
	return checkRowsAffected(result)
}

// ToggleActive flips the active flag and returns the new value.
func (r *UserRepository) ToggleActive(ctx context.Context, id string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx,
		`UPDATE users SET active = NOT active WHERE id = ? RETURNING active`, id,
	).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggling active flag: %w", err)
	}
	return active, nil
}

// ToggleAdmin flips the admin flag and returns the new value.
func (r *UserRepository) ToggleAdmin(ctx context.Context, id string) (bool, error) {
	var isAdmin bool
	err := r.db.QueryRowContext(ctx,
		`UPDATE users SET is_admin = NOT is_admin WHERE id = ? RETURNING is_admin`, id,
	).Scan(&isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggling admin flag: %w", err)
	}
	return isAdmin, nil
}

type UserStatus string

const (
	UserStatusAll      UserStatus = "all"
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusAdmin    UserStatus = "admin"
)

type UserFilter struct {
	Search string
	Status UserStatus
	Page   Page
}

func (f UserFilter) where() (string, []any) {
	clause := `WHERE 1 = 1`
	var args []any
	if f.Search != "" {
		clause += ` AND (username LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')`
		pattern := likePattern(f.Search)
		args = append(args, pattern, pattern)
	}
	switch f.Status {
	case UserStatusActive:
		clause += ` AND active = 1`
	case UserStatusInactive:
		clause += ` AND active = 0`
	case UserStatusAdmin:
		clause += ` AND is_admin = 1`
	}
	return clause, args
}

// List returns one page of users, newest first, with the total match count.
func (r *UserRepository) List(ctx context.Context, f UserFilter) ([]*models.User, int, error) {
	where, args := f.where()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	limit, offset := f.Page.args()
	users, err := r.findMany(ctx,
		`SELECT `+userColumns+` FROM users `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) Recent(ctx context.Context, limit int) ([]*models.User, error) {
	return r.findMany(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT ?`, limit)
}

type UserCounts struct {
	Total  int
	Active int
	Admins int
}

func (r *UserRepository) Counts(ctx context.Context) (UserCounts, error) {
	var c UserCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN is_admin = 1 THEN 1 ELSE 0 END), 0)
		   FROM users`,
	).Scan(&c.Total, &c.Active, &c.Admins)
	if err != nil {
		return UserCounts{}, fmt.Errorf("counting users: %w", err)
	}
	return c, nil
}

func (r *UserRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE created_at >= ?`, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting recent users: %w", err)
	}
	return count, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) findMany(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var lastLogin sql.NullTime

	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Active,
		&u.IsAdmin,
		&u.CreatedAt,
		&lastLogin,
	); err != nil {
		return nil, err
	}

	u.CreatedAt = u.CreatedAt.UTC()
	u.LastLoginAt = nullTimeToPtr(lastLogin)
	return &u, nil
}

func duplicateUserError(err error) error {
	switch uniqueViolationColumn(err) {
	case "users.username":
		return ErrDuplicateUsername
	case "users.email":
		return ErrDuplicateEmail
	}
	if IsUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return nil
}
