package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/and161185/tubeaccount/internal/errs"
	"github.com/and161185/tubeaccount/internal/model"
)

// requireUser resolves the access token from the accessToken cookie or the
// Authorization header and stores the user in the request context. The stored
// refresh token is never consulted here.
func (s *Server) requireUser(c *fiber.Ctx) error {
	token := c.Cookies(accessCookie)
	if token == "" {
		token = bearerToken(c.Get(fiber.HeaderAuthorization))
	}
	u, err := s.tokens.Authenticate(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.SetUserContext(WithUser(c.UserContext(), u))
	return c.Next()
}

func bearerToken(h string) string {
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// currentUser returns the user placed by requireUser.
func currentUser(c *fiber.Ctx) (*model.User, error) {
	u, ok := UserFromCtx(c.UserContext())
	if !ok {
		return nil, errs.Unauthorized("unauthorized request")
	}
	return u, nil
}
