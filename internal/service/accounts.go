package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/tubeaccount/internal/assets"
	pkgcrypto "github.com/and161185/tubeaccount/internal/crypto"
	"github.com/and161185/tubeaccount/internal/errs"
	"github.com/and161185/tubeaccount/internal/limiter"
	"github.com/and161185/tubeaccount/internal/model"
	"github.com/and161185/tubeaccount/internal/repository"
)

// Messages returned to clients for account failures.
const (
	MsgAllFieldsRequired   = "all fields are required"
	MsgAvatarRequired      = "avatar file is required"
	MsgUserExists          = "user with email or username already exists"
	MsgLoginRequired       = "username or email is required"
	MsgInvalidCredentials  = "invalid user credentials"
	MsgTooManyAttempts     = "too many login attempts, try again later"
	MsgInvalidOldPassword  = "invalid old password"
	MsgPasswordsRequired   = "old and new password are required"
	MsgPasswordTooLong     = "password is too long"
	MsgEmailTaken          = "email is already in use"
	MsgAvatarMissing       = "avatar file is missing"
	MsgAvatarUploadFailed  = "error while uploading avatar"
	MsgCoverMissing        = "cover image file is missing"
	MsgCoverUploadFailed   = "error while uploading cover image"
	msgAccountInternalFail = "something went wrong while updating the account"
)

// RegisterInput carries the registration form.
type RegisterInput struct {
	FullName   string
	Email      string
	Username   string
	Password   string
	Avatar     *assets.File
	CoverImage *assets.File
}

// LoginInput carries login credentials; one of Username and Email is enough.
type LoginInput struct {
	Username string
	Email    string
	Password string
	IP       string
}

// AccountService implements registration, login and profile maintenance.
type AccountService struct {
	users  repository.UserRepository
	tokens *TokenService
	assets assets.Uploader
	lim    limiter.Limiter
	log    *zap.Logger
}

// NewAccountService constructs AccountService with required dependencies.
func NewAccountService(users repository.UserRepository, tokens *TokenService, up assets.Uploader, lim limiter.Limiter, log *zap.Logger) *AccountService {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{users: users, tokens: tokens, assets: up, lim: lim, log: log}
}

// Register validates the form, uploads the images and creates the user.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if fullName == "" || email == "" || username == "" || strings.TrimSpace(in.Password) == "" {
		return nil, errs.BadRequest(MsgAllFieldsRequired)
	}

	_, err := s.users.FindByLogin(ctx, username, email)
	switch {
	case err == nil:
		return nil, errs.Conflict(MsgUserExists)
	case !errors.Is(err, errs.ErrNotFound):
		return nil, errs.Internal("failed to check existing user", err)
	}

	if in.Avatar == nil {
		return nil, errs.BadRequest(MsgAvatarRequired)
	}
	avatarURL, err := s.assets.Upload(ctx, assets.KindAvatar, *in.Avatar)
	if err != nil {
		s.log.Warn("avatar upload failed", zap.Error(err))
		return nil, errs.New(http.StatusBadRequest, MsgAvatarRequired, errors.Join(errs.ErrUpload, err))
	}

	var coverURL string
	if in.CoverImage != nil {
		if coverURL, err = s.assets.Upload(ctx, assets.KindCover, *in.CoverImage); err != nil {
			s.log.Warn("cover image upload failed, continuing without it", zap.Error(err))
			coverURL = ""
		}
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, errs.Internal("something went wrong while registering the user", err)
	}

	u := &model.User{
		ID:         id,
		Username:   username,
		Email:      email,
		FullName:   fullName,
		Avatar:     avatarURL,
		CoverImage: coverURL,
		PwdHash:    hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, errs.Conflict(MsgUserExists)
		}
		return nil, errs.Internal("something went wrong while registering the user", err)
	}
	clean := u.Sanitized()
	return &clean, nil
}

// Login checks credentials under the rate limiter and issues tokens.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*model.User, model.Tokens, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" && email == "" {
		return nil, model.Tokens{}, errs.BadRequest(MsgLoginRequired)
	}
	u, err := s.users.FindByLogin(ctx, username, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, model.Tokens{}, errs.Internal("login temporarily unavailable", err)
	}
	found := err == nil

	// one lockout budget per account, whichever identifier was presented
	key := username
	if key == "" {
		key = email
	}
	if found {
		key = u.ID.String()
	}
	ipHash := limiter.HashIP(in.IP)

	allowed, _, err := s.lim.Allow(ctx, key, ipHash)
	if err != nil {
		return nil, model.Tokens{}, errs.Internal("login temporarily unavailable", err)
	}
	if !allowed {
		return nil, model.Tokens{}, errs.New(http.StatusTooManyRequests, MsgTooManyAttempts, errs.ErrRateLimited)
	}

	if !found || !pkgcrypto.VerifyPassword([]byte(in.Password), u.PwdHash) {
		blocked, _, ferr := s.lim.Failure(ctx, key, ipHash)
		if ferr != nil {
			s.log.Warn("limiter failure not recorded", zap.Error(ferr))
		}
		if blocked {
			return nil, model.Tokens{}, errs.New(http.StatusTooManyRequests, MsgTooManyAttempts, errs.ErrRateLimited)
		}
		return nil, model.Tokens{}, errs.Unauthorized(MsgInvalidCredentials)
	}

	if err := s.lim.Success(ctx, key, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}

	tokens, err := s.tokens.Issue(ctx, u.ID)
	if err != nil {
		return nil, model.Tokens{}, err
	}
	clean := u.Sanitized()
	return &clean, tokens, nil
}

// Logout revokes the user's refresh token.
func (s *AccountService) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.tokens.Revoke(ctx, userID)
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if oldPassword == "" || strings.TrimSpace(newPassword) == "" {
		return errs.BadRequest(MsgPasswordsRequired)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return errs.Internal(msgAccountInternalFail, err)
	}
	if !pkgcrypto.VerifyPassword([]byte(oldPassword), u.PwdHash) {
		return errs.BadRequest(MsgInvalidOldPassword)
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, userID, hash); err != nil {
		return errs.Internal(msgAccountInternalFail, err)
	}
	return nil
}

// UpdateAccount changes full name and email.
func (s *AccountService) UpdateAccount(ctx context.Context, userID uuid.UUID, fullName, email string) (*model.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" {
		return nil, errs.BadRequest(MsgAllFieldsRequired)
	}
	u, err := s.users.UpdateAccount(ctx, userID, fullName, email)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, errs.Conflict(MsgEmailTaken)
		}
		return nil, errs.Internal(msgAccountInternalFail, err)
	}
	clean := u.Sanitized()
	return &clean, nil
}

// UpdateAvatar uploads a new avatar and stores its URL.
func (s *AccountService) UpdateAvatar(ctx context.Context, userID uuid.UUID, f *assets.File) (*model.User, error) {
	if f == nil {
		return nil, errs.BadRequest(MsgAvatarMissing)
	}
	url, err := s.assets.Upload(ctx, assets.KindAvatar, *f)
	if err != nil {
		return nil, errs.New(http.StatusBadRequest, MsgAvatarUploadFailed, errors.Join(errs.ErrUpload, err))
	}
	return s.sanitize(s.users.SetAvatar(ctx, userID, url))
}

// UpdateCoverImage uploads a new cover image and stores its URL.
func (s *AccountService) UpdateCoverImage(ctx context.Context, userID uuid.UUID, f *assets.File) (*model.User, error) {
	if f == nil {
		return nil, errs.BadRequest(MsgCoverMissing)
	}
	url, err := s.assets.Upload(ctx, assets.KindCover, *f)
	if err != nil {
		return nil, errs.New(http.StatusBadRequest, MsgCoverUploadFailed, errors.Join(errs.ErrUpload, err))
	}
	return s.sanitize(s.users.SetCoverImage(ctx, userID, url))
}

// ListUsers returns every user without credential fields.
func (s *AccountService) ListUsers(ctx context.Context) ([]model.User, error) {
	list, err := s.users.List(ctx)
	if err != nil {
		return nil, errs.Internal("failed to list users", err)
	}
	for i := range list {
		list[i] = list[i].Sanitized()
	}
	return list, nil
}

func (s *AccountService) sanitize(u *model.User, err error) (*model.User, error) {
	if err != nil {
		return nil, errs.Internal(msgAccountInternalFail, err)
	}
	clean := u.Sanitized()
	return &clean, nil
}

func hashPassword(pw string) ([]byte, error) {
	hash, err := pkgcrypto.HashPassword([]byte(pw))
	switch {
	case errors.Is(err, pkgcrypto.ErrPasswordTooLong):
		return nil, errs.BadRequest(MsgPasswordTooLong)
	case err != nil:
		return nil, errs.Internal("failed to hash password", err)
	}
	return hash, nil
}
