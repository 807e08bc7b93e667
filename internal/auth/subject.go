package auth

import (
	"context"
	"fmt"

	"gatehouse/internal/db"
	"gatehouse/internal/models"
)

// Subject names the account a verification-status lookup is about. It is
// resolved once at the boundary into a concrete user.
type Subject interface {
	resolve(ctx context.Context, users *db.UserRepository) (*models.User, error)
}

// ByUser wraps an already loaded user.
type ByUser struct{ User *models.User }

// ByID names a user by primary key.
type ByID struct{ UserID string }

// ByIdentifier names a user by username or email.
type ByIdentifier struct{ Identifier string }

func (s ByUser) resolve(context.Context, *db.UserRepository) (*models.User, error) {
	if s.User == nil {
		return nil, db.ErrNotFound
	}
	return s.User, nil
}

func (s ByID) resolve(ctx context.Context, users *db.UserRepository) (*models.User, error) {
	return users.FindByID(ctx, s.UserID)
}

func (s ByIdentifier) resolve(ctx context.Context, users *db.UserRepository) (*models.User, error) {
	return users.FindByIdentifier(ctx, NormalizeIdentifier(s.Identifier))
}

func resolveSubject(ctx context.Context, users *db.UserRepository, s Subject) (*models.User, error) {
	if s == nil {
		return nil, fmt.Errorf("resolving subject: %w", db.ErrNotFound)
	}
	return s.resolve(ctx, users)
}
