package handlers

import (
	"errors"

	"github.com/fenilmodi00/lottery-backend/services"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/gofiber/fiber/v2"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrBatchInProgress):
		return fiber.StatusConflict
	case errors.Is(err, shared.ErrNoCatalogAvailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, shared.ErrBrowserLaunch):
		return fiber.StatusServiceUnavailable
	}
	var serviceErr *shared.ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Category == shared.ErrorCategoryValidation {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// failure writes the error envelope. Service errors expose only their
// message; the cause chain stays in the logs.
func failure(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	message := err.Error()
	var serviceErr *shared.ServiceError
	if errors.As(err, &serviceErr) {
		message = serviceErr.Message
		if status >= fiber.StatusInternalServerError {
			serviceErr.LogError()
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"success":   false,
		"error":     message,
		"retryable": shared.IsRetryableError(err),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}
