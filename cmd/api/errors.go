package main

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/copassenger-api/internal/validate"
)

const msgBadBody = "Invalid request body."

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError sends {"error": msg} with the given status.
func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(errorBody{Error: msg})
}

// writeInternal sends a 500 with a generic message plus the cause for debugging.
func writeInternal(c *fiber.Ctx, msg string, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody{Error: msg, Details: err.Error()})
}

// errorHandler catches anything a handler returned instead of writing a
// response itself, including recovered panics.
func errorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return writeError(c, fe.Code, fe.Message)
		}
		log.Errorw("unhandled error", "method", c.Method(), "path", c.Path(), "error", err)
		return writeInternal(c, "Internal server error", err)
	}
}

// bind parses the JSON body into dst and checks its validate tags.
func bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, msgBadBody)
	}
	return validate.Struct(dst)
}

// writeBindError answers a failed bind with a 400. missing replaces the
// message when a required field was absent or empty.
func writeBindError(c *fiber.Ctx, err error, missing string) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return writeError(c, fe.Code, fe.Message)
	}
	fields := validate.Format(err)
	if len(fields) == 0 {
		return writeInternal(c, "Failed to validate request", err)
	}

	msg := fields[0].Message
	details := make([]string, len(fields))
	for i, f := range fields {
		details[i] = f.Message
		if f.Missing && missing != "" {
			msg = missing
		}
	}
	return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: msg, Details: strings.Join(details, "; ")})
}
