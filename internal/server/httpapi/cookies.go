package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/and161185/tubeaccount/internal/model"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

func (s *Server) setAuthCookies(c *fiber.Ctx, t model.Tokens) {
	c.Cookie(s.cookie(accessCookie, t.AccessToken, s.opts.AccessTTL))
	c.Cookie(s.cookie(refreshCookie, t.RefreshToken, s.opts.RefreshTTL))
}

func (s *Server) clearAuthCookies(c *fiber.Ctx) {
	for _, name := range []string{accessCookie, refreshCookie} {
		ck := s.cookie(name, "", 0)
		ck.Expires = time.Unix(0, 0)
		c.Cookie(ck)
	}
}

func (s *Server) cookie(name, value string, ttl time.Duration) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HTTPOnly: true,
		Secure:   s.opts.CookieSecure,
	}
}
