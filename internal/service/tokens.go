// Package service contains the account, token and channel application services.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/tubeaccount/internal/errs"
	"github.com/and161185/tubeaccount/internal/model"
	"github.com/and161185/tubeaccount/internal/repository"
)

// Messages returned to clients for token failures.
const (
	MsgUnauthorized        = "unauthorized request"
	MsgInvalidRefresh      = "invalid refresh token"
	MsgRefreshExpired      = "refresh token expired"
	MsgRefreshUsed         = "refresh token is expired or already used"
	MsgInvalidAccess       = "invalid access token"
	MsgAccessExpired       = "access token expired"
	msgTokenGenerationFail = "something went wrong while generating refresh and access token"
)

// TokenConfig holds the signing keys and lifetimes of both token kinds.
type TokenConfig struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
}

// AccessClaims identify the user on every gated request.
type AccessClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

// RefreshClaims carry only the subject and a unique token id.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// TokenService issues, verifies, rotates and revokes tokens.
type TokenService struct {
	users repository.UserRepository
	cfg   TokenConfig
	now   func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(users repository.UserRepository, cfg TokenConfig) *TokenService {
	return &TokenService{users: users, cfg: cfg, now: time.Now}
}

// Issue signs a fresh pair for userID and stores the refresh token, replacing
// any earlier one.
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID) (model.Tokens, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Tokens{}, errs.Internal(msgTokenGenerationFail, err)
	}
	tokens, err := s.sign(u)
	if err != nil {
		return model.Tokens{}, errs.Internal(msgTokenGenerationFail, err)
	}
	if err := s.users.SetRefreshToken(ctx, u.ID, tokens.RefreshToken); err != nil {
		return model.Tokens{}, errs.Internal(msgTokenGenerationFail, err)
	}
	return tokens, nil
}

// Rotate exchanges the presented refresh token for a new pair. The stored
// token is swapped atomically, so a token can be used at most once.
func (s *TokenService) Rotate(ctx context.Context, presented string) (model.Tokens, error) {
	if presented == "" {
		return model.Tokens{}, errs.Unauthorized(MsgUnauthorized)
	}

	var claims RefreshClaims
	if err := s.parse(presented, &claims, s.cfg.RefreshSecret); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Tokens{}, errs.Unauthorized(MsgRefreshExpired)
		}
		return model.Tokens{}, errs.Unauthorized(MsgInvalidRefresh)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return model.Tokens{}, errs.Unauthorized(MsgInvalidRefresh)
	}

	u, err := s.users.GetByID(ctx, id)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return model.Tokens{}, errs.Unauthorized(MsgInvalidRefresh)
	case err != nil:
		return model.Tokens{}, errs.Internal(msgTokenGenerationFail, err)
	}
	if u.RefreshToken != presented {
		return model.Tokens{}, errs.Unauthorized(MsgRefreshUsed)
	}

	tokens, err := s.sign(u)
	if err != nil {
		return model.Tokens{}, errs.Internal(msgTokenGenerationFail, err)
	}
	err = s.users.SwapRefreshToken(ctx, u.ID, presented, tokens.RefreshToken)
	switch {
	case errors.Is(err, errs.ErrVersionConflict):
		return model.Tokens{}, errs.Unauthorized(MsgRefreshUsed)
	case err != nil:
		return model.Tokens{}, errs.Internal(msgTokenGenerationFail, err)
	}
	return tokens, nil
}

// Revoke drops the stored refresh token; a missing user is not an error.
func (s *TokenService) Revoke(ctx context.Context, userID uuid.UUID) error {
	err := s.users.ClearRefreshToken(ctx, userID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return errs.Internal("failed to log out", err)
	}
	return nil
}

// ParseAccess verifies an access token's signature and expiry.
func (s *TokenService) ParseAccess(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(token, &claims, s.cfg.AccessSecret); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.Unauthorized(MsgAccessExpired)
		}
		return nil, errs.Unauthorized(MsgInvalidAccess)
	}
	return &claims, nil
}

// Authenticate resolves an access token to the stored user without credential fields.
func (s *TokenService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, errs.Unauthorized(MsgUnauthorized)
	}
	claims, err := s.ParseAccess(token)
	if err != nil {
		return nil, err
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return nil, errs.Unauthorized(MsgInvalidAccess)
	}
	u, err := s.users.GetByID(ctx, id)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, errs.Unauthorized(MsgInvalidAccess)
	case err != nil:
		return nil, errs.Internal("failed to resolve user", err)
	}
	clean := u.Sanitized()
	return &clean, nil
}

func (s *TokenService) sign(u *model.User) (model.Tokens, error) {
	now := s.now()
	accessExp := now.Add(s.cfg.AccessTTL)

	access := AccessClaims{
		Email:    u.Email,
		Username: u.Username,
		FullName: u.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}
	accessStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(s.cfg.AccessSecret)
	if err != nil {
		return model.Tokens{}, err
	}

	jti, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, err
	}
	refresh := RefreshClaims{jwt.RegisteredClaims{
		Subject:   u.ID.String(),
		ID:        jti.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
	}}
	refreshStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(s.cfg.RefreshSecret)
	if err != nil {
		return model.Tokens{}, err
	}

	return model.Tokens{AccessToken: accessStr, RefreshToken: refreshStr, ExpiresAt: accessExp}, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims, key []byte) error {
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	return err
}
