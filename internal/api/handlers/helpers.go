package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
)

const OrganizationIDKey = "organization_id"

func GetOrganizationID(c *fiber.Ctx) string {
	orgID, _ := c.Locals(OrganizationIDKey).(string)
	return orgID
}

// errorResponse maps service errors to HTTP statuses. Unknown errors are
// logged and hidden behind a generic message.
func errorResponse(c *fiber.Ctx, err error) error {
	var vErr *service.ValidationFailedError
	switch {
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":      vErr.Error(),
			"validation": vErr.Result,
		})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrStateConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	slog.Error(err.Error(), slog.String("path", c.Path()))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
