package api

import (
	"errors"

	"github.com/Caia-Tech/caia-ocr/internal/service"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	var (
		fiberErr    *fiber.Error
		initErr     *ocr.EngineInitError
		variableErr *ocr.InvalidVariableError
		argErr      *ocr.ArgumentError
		decodeErr   *ocr.ImageDecodeError
	)
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, ocr.ErrHandleNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrEngineLimit):
		return fiber.StatusTooManyRequests
	case errors.Is(err, ocr.ErrEngineDead):
		return fiber.StatusGone
	case errors.As(err, &initErr):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &variableErr), errors.As(err, &argErr):
		return fiber.StatusBadRequest
	case errors.As(err, &decodeErr):
		return fiber.StatusUnsupportedMediaType
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": err.Error()}
	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) || errors.Is(err, ocr.ErrHandleNotFound) || errors.Is(err, service.ErrEngineLimit) {
		body["error_type"] = service.ErrorType(err)
	}
	return c.Status(StatusFor(err)).JSON(body)
}
