package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/and161185/tubeaccount/internal/assets"
	"github.com/and161185/tubeaccount/internal/convert"
	"github.com/and161185/tubeaccount/internal/errs"
	"github.com/and161185/tubeaccount/internal/service"
)

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" form:"oldPassword"`
	NewPassword string `json:"newPassword" form:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName" form:"fullName"`
	Email    string `json:"email" form:"email"`
}

// parseBody decodes an optional body; an empty body leaves out untouched.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return errs.BadRequest("invalid request body")
	}
	return nil
}

// formFile opens the named multipart file; a missing field or a non-multipart
// body yields nil. Oversized bodies never get here: the server's BodyLimit
// rejects them with 413 through the error handler.
func formFile(c *fiber.Ctx, field string) (*assets.File, func(), error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, func() {}, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, errs.BadRequest("unreadable file " + field)
	}
	return &assets.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

func (s *Server) listUsers(c *fiber.Ctx) error {
	list, err := s.accounts.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, convert.ToUserViews(list), "users fetched successfully")
}

func (s *Server) register(c *fiber.Ctx) error {
	avatar, closeAvatar, err := formFile(c, "avatar")
	if err != nil {
		return err
	}
	defer closeAvatar()
	cover, closeCover, err := formFile(c, "coverImage")
	if err != nil {
		return err
	}
	defer closeCover()

	u, err := s.accounts.Register(c.UserContext(), service.RegisterInput{
		FullName:   c.FormValue("fullName"),
		Email:      c.FormValue("email"),
		Username:   c.FormValue("username"),
		Password:   c.FormValue("password"),
		Avatar:     avatar,
		CoverImage: cover,
	})
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, convert.ToUserView(*u), "user registered successfully")
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, tokens, err := s.accounts.Login(c.UserContext(), service.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		IP:       c.IP(),
	})
	if err != nil {
		return err
	}
	s.setAuthCookies(c, tokens)
	return respond(c, fiber.StatusOK, convert.ToLoginView(*u, tokens), "user logged in successfully")
}

func (s *Server) refreshToken(c *fiber.Ctx) error {
	presented := c.Cookies(refreshCookie)
	if presented == "" {
		var req refreshRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		presented = req.RefreshToken
	}
	tokens, err := s.tokens.Rotate(c.UserContext(), presented)
	if err != nil {
		return err
	}
	s.setAuthCookies(c, tokens)
	return respond(c, fiber.StatusOK, convert.ToTokensView(tokens), "access token refreshed")
}

func (s *Server) logout(c *fiber.Ctx) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := s.accounts.Logout(c.UserContext(), u.ID); err != nil {
		return err
	}
	s.clearAuthCookies(c)
	return respond(c, fiber.StatusOK, fiber.Map{}, "user logged out")
}

func (s *Server) changePassword(c *fiber.Ctx) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := s.accounts.ChangePassword(c.UserContext(), u.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, fiber.Map{}, "password changed successfully")
}

func (s *Server) currentUser(c *fiber.Ctx) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, convert.ToUserView(*u), "current user fetched successfully")
}

func (s *Server) updateAccount(c *fiber.Ctx) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req updateAccountRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := s.accounts.UpdateAccount(c.UserContext(), u.ID, req.FullName, req.Email)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, convert.ToUserView(*updated), "account details updated successfully")
}

func (s *Server) updateAvatar(c *fiber.Ctx) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	f, closeFile, err := formFile(c, "avatar")
	if err != nil {
		return err
	}
	defer closeFile()

	updated, err := s.accounts.UpdateAvatar(c.UserContext(), u.ID, f)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, convert.ToUserView(*updated), "avatar image updated successfully")
}

func (s *Server) updateCoverImage(c *fiber.Ctx) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	f, closeFile, err := formFile(c, "coverImage")
	if err != nil {
		return err
	}
	defer closeFile()

	updated, err := s.accounts.UpdateCoverImage(c.UserContext(), u.ID, f)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, convert.ToUserView(*updated), "cover image updated successfully")
}

func (s *Server) channelProfile(c *fiber.Ctx) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	p, err := s.channels.Profile(c.UserContext(), c.Params("username"), u.ID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, convert.ToChannelView(*p), "user channel fetched successfully")
}

func (s *Server) watchHistory(c *fiber.Ctx) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	h, err := s.channels.History(c.UserContext(), u.ID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, convert.ToHistoryView(h), "watch history fetched successfully")
}
