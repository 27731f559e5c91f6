package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/and161185/tubeaccount/internal/errs"
)

type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type errorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

func respond(c *fiber.Ctx, status int, data any, msg string) error {
	return c.Status(status).JSON(envelope{
		StatusCode: status,
		Data:       data,
		Message:    msg,
		Success:    status < fiber.StatusBadRequest,
	})
}

// handleError converts any handler error into the error envelope.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, msg := errs.StatusOf(err), errs.MessageOf(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status, msg = fe.Code, fe.Message
	}

	if status >= fiber.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	return c.Status(status).JSON(errorEnvelope{
		StatusCode: status,
		Message:    msg,
		Success:    false,
		Errors:     []string{},
	})
}
