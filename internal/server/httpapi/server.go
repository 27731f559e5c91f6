// Package httpapi exposes the account service over HTTP with fiber.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/tubeaccount/internal/assets"
	"github.com/and161185/tubeaccount/internal/model"
	"github.com/and161185/tubeaccount/internal/service"
)

// Accounts is the account service as used by the handlers.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, in service.LoginInput) (*model.User, model.Tokens, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	UpdateAccount(ctx context.Context, userID uuid.UUID, fullName, email string) (*model.User, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, f *assets.File) (*model.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, f *assets.File) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

// Tokens rotates refresh tokens and resolves access tokens.
type Tokens interface {
	Rotate(ctx context.Context, presented string) (model.Tokens, error)
	Authenticate(ctx context.Context, accessToken string) (*model.User, error)
}

// Channels serves the read views.
type Channels interface {
	Profile(ctx context.Context, username string, viewerID uuid.UUID) (*model.ChannelProfile, error)
	History(ctx context.Context, userID uuid.UUID) ([]model.WatchedVideo, error)
}

// Options tune transport behaviour.
type Options struct {
	CookieSecure   bool
	PublicUserList bool
	MaxUploadBytes int64
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server holds the handlers' dependencies.
type Server struct {
	accounts Accounts
	tokens   Tokens
	channels Channels
	opts     Options
	log      *zap.Logger
}

// New constructs a Server.
func New(accounts Accounts, tokens Tokens, channels Channels, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{accounts: accounts, tokens: tokens, channels: channels, opts: opts, log: log}
}

// App builds the fiber application with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "tubeaccount",
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             int(s.opts.MaxUploadBytes),
		ReadTimeout:           s.opts.ReadTimeout,
		WriteTimeout:          s.opts.WriteTimeout,
		ErrorHandler:          s.handleError,
	})
	app.Use(logRequests(s.log))
	app.Use(recoverPanics(s.log))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return respond(c, fiber.StatusOK, fiber.Map{"status": "ok"}, "ok")
	})

	users := app.Group("/api/v1/users")
	if s.opts.PublicUserList {
		users.Get("/getuser", s.listUsers)
	} else {
		users.Get("/getuser", s.requireUser, s.listUsers)
	}
	users.Post("/register", s.register)
	users.Post("/login", s.login)
	users.Post("/refresh-token", s.refreshToken)

	users.Post("/logout", s.requireUser, s.logout)
	users.Post("/change-password", s.requireUser, s.changePassword)
	users.Get("/current-user", s.requireUser, s.currentUser)
	users.Patch("/update-account", s.requireUser, s.updateAccount)
	users.Patch("/avatar", s.requireUser, s.updateAvatar)
	users.Patch("/coverImage", s.requireUser, s.updateCoverImage)
	users.Get("/c/:username", s.requireUser, s.channelProfile)
	users.Get("/history", s.requireUser, s.watchHistory)

	return app
}
