// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/tubeaccount/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to user records. Updates are partial: each
// method touches only the columns it names.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrAlreadyExists on a username/email clash.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// FindByLogin loads the user whose username or email matches.
	FindByLogin(ctx context.Context, username, email string) (*model.User, error)
	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]model.User, error)

	// SetRefreshToken overwrites the stored refresh token.
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	// SwapRefreshToken replaces the stored refresh token only if it still equals
	// expected. Returns errs.ErrVersionConflict otherwise.
	SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, token string) error
	// ClearRefreshToken removes the stored refresh token.
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error

	// SetPassword stores a new password hash.
	SetPassword(ctx context.Context, id uuid.UUID, hash []byte) error
	// UpdateAccount sets full name and email and returns the updated user.
	UpdateAccount(ctx context.Context, id uuid.UUID, fullName, email string) (*model.User, error)
	// SetAvatar stores a new avatar URL and returns the updated user.
	SetAvatar(ctx context.Context, id uuid.UUID, url string) (*model.User, error)
	// SetCoverImage stores a new cover image URL and returns the updated user.
	SetCoverImage(ctx context.Context, id uuid.UUID, url string) (*model.User, error)
}
