package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/tubeaccount/internal/errs"
	"github.com/and161185/tubeaccount/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// userColumns is the projection shared by every query returning a full user.
const userColumns = `id, username, email, full_name, avatar, cover_image, pwd_hash, COALESCE(refresh_token, ''), created_at, updated_at`

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Avatar, &u.CoverImage,
		&u.PwdHash, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row and fills the timestamps assigned by the database.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, email, full_name, avatar, cover_image, pwd_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.Username, u.Email, u.FullName, u.Avatar, u.CoverImage, u.PwdHash).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// FindByLogin selects a user by username or email. An empty argument never
// matches because both columns are non-empty by constraint. When the two
// identify different users the username match is returned.
func (r *UserRepo) FindByLogin(ctx context.Context, username, email string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username=$1 OR email=$2 ORDER BY (username=$1) DESC LIMIT 1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, username, email))
}

// List selects all users, oldest first.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// SetRefreshToken overwrites refresh_token unconditionally.
func (r *UserRepo) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	const q = `UPDATE users SET refresh_token=$2 WHERE id=$1`
	return r.execOne(ctx, q, errs.ErrNotFound, id, token)
}

// SwapRefreshToken updates refresh_token only while it still equals expected.
func (r *UserRepo) SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, token string) error {
	const q = `UPDATE users SET refresh_token=$3 WHERE id=$1 AND refresh_token=$2`
	return r.execOne(ctx, q, errs.ErrVersionConflict, id, expected, token)
}

// ClearRefreshToken sets refresh_token to NULL.
func (r *UserRepo) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET refresh_token=NULL WHERE id=$1`
	return r.execOne(ctx, q, errs.ErrNotFound, id)
}

// SetPassword stores a new bcrypt hash.
func (r *UserRepo) SetPassword(ctx context.Context, id uuid.UUID, hash []byte) error {
	const q = `UPDATE users SET pwd_hash=$2, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, q, errs.ErrNotFound, id, hash)
}

// UpdateAccount sets full_name and email.
func (r *UserRepo) UpdateAccount(ctx context.Context, id uuid.UUID, fullName, email string) (*model.User, error) {
	q := `UPDATE users SET full_name=$2, email=$3, updated_at=now() WHERE id=$1 RETURNING ` + userColumns
	return r.updateReturning(ctx, q, id, fullName, email)
}

// SetAvatar sets avatar.
func (r *UserRepo) SetAvatar(ctx context.Context, id uuid.UUID, url string) (*model.User, error) {
	q := `UPDATE users SET avatar=$2, updated_at=now() WHERE id=$1 RETURNING ` + userColumns
	return r.updateReturning(ctx, q, id, url)
}

// SetCoverImage sets cover_image.
func (r *UserRepo) SetCoverImage(ctx context.Context, id uuid.UUID, url string) (*model.User, error) {
	q := `UPDATE users SET cover_image=$2, updated_at=now() WHERE id=$1 RETURNING ` + userColumns
	return r.updateReturning(ctx, q, id, url)
}

func (r *UserRepo) updateReturning(ctx context.Context, q string, args ...any) (*model.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, args...))
	if isUniqueViolation(err) {
		return nil, errs.ErrAlreadyExists
	}
	return u, err
}

// execOne runs a single-row update and returns missErr when no row matched.
func (r *UserRepo) execOne(ctx context.Context, q string, missErr error, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update users: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missErr
	}
	return nil
}
