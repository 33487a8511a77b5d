package utils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrValidation         = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrLocked             = errors.New("account locked")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrPrimaryUnavailable = errors.New("primary store unavailable")
	ErrUpstream           = errors.New("upstream failure")
)

// StatusFromError maps the service error taxonomy onto HTTP status codes.
// ErrPrimaryUnavailable maps to 503: read paths never surface it, so it only
// reaches a handler from operations that require the primary (sync, file serving).
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedType):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, ErrLocked):
		return fiber.StatusLocked
	case errors.Is(err, ErrPrimaryUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
